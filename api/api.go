// Package api embeds the OpenAPI document served and enforced by the discover service.
package api

import _ "embed"

//go:embed key_transactions.yaml
var KeyTransactions []byte
