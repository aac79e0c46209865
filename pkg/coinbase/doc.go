// Package coinbase is the typed endpoint catalogue on top of package client.
//
// Paged endpoints return an iter.Seq2 that starts a fresh page chain every
// time it is ranged over. Records arrive in server order; a failure is the
// final element:
//
//	cb := coinbase.New(c, logger)
//	for tx, err := range cb.Transactions(ctx, accountID) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(tx.Amount.Amount, tx.Amount.Currency)
//	}
//
// Single-shot calls decode non-2xx bodies into *APIError.
//
// Fills live on the Exchange API and need a client created with
// client.BaseURLExchange; everything else uses client.BaseURLProduction.
package coinbase
