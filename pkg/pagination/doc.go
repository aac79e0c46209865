// Package pagination turns cursor paged endpoints into one lazy sequence of
// typed records.
//
// Coinbase uses three cursor families, each modelled by a PageCursor:
//
//   - HeaderCursor: the Exchange API returns a JSON array and a CB-AFTER
//     (or CB-BEFORE) response header, echoed back as the after (before) query
//     parameter.
//   - BodyCursor: Advanced Trade returns {"<items>": [...], "cursor": "...",
//     "has_next": true}, echoed back as cursor.
//   - StartingAfterCursor: the v2 API returns {"data": [...], "pagination":
//     {"next_starting_after": "..."}}, echoed back as starting_after.
//
// Tokens are opaque and copied into the next request verbatim.
//
// Example usage:
//
//	p := pagination.New(client, coinbase.ListAccounts, pagination.StartingAfterCursor[coinbase.Account](), pagination.Config{Limit: 100}, logger)
//	for account, err := range p.All(ctx, request.Params{}) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(account.Name)
//	}
//
// A Stream is a pull driven state machine: the next page is requested only
// when the consumer asks for a record past the end of the current page, so a
// consumer that stops early never triggers another request. Streams are
// forward only; calling Stream or All again starts a fresh chain from the
// first page. Pages are never retried: the first failure ends the sequence and
// is delivered as its last element, after every record already emitted.
package pagination
