package pagination

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/Sternrassler/coinbase-client/pkg/transport"
)

// Token is an opaque continuation marker. The empty token means "no next page".
type Token string

// Page is one decoded server page.
type Page[T any] struct {
	Items []T
	Next  Token
}

// Terminal reports whether no further page exists.
func (p Page[T]) Terminal() bool {
	return p.Next == ""
}

// Decoder turns one raw response into a page.
type Decoder[T any] func(resp *transport.RawResponse) (Page[T], error)

// PageCursor knows where a cursor family puts the next token in a response
// (Decode) and where it goes in the following request (Param).
type PageCursor[T any] struct {
	Param  string
	Decode Decoder[T]
}

// Apply copies tok into the query unmodified.
func (c PageCursor[T]) Apply(query url.Values, tok Token) {
	query.Set(c.Param, string(tok))
}

// Direction selects which Exchange API header drives paging.
type Direction string

const (
	// After walks towards older records (CB-AFTER header, after parameter).
	After Direction = "after"
	// Before walks towards newer records (CB-BEFORE header, before parameter).
	Before Direction = "before"
)

// HeaderCursor pages an endpoint that returns a bare JSON array and carries
// the next token in the CB-AFTER or CB-BEFORE header.
func HeaderCursor[T any](dir Direction) PageCursor[T] {
	header := "CB-AFTER"
	if dir == Before {
		header = "CB-BEFORE"
	}
	return PageCursor[T]{
		Param: string(dir),
		Decode: func(resp *transport.RawResponse) (Page[T], error) {
			var items []T
			if err := DecodeJSON(resp.Body, &items); err != nil {
				return Page[T]{}, err
			}
			return Page[T]{Items: items, Next: Token(resp.Header.Get(header))}, nil
		},
	}
}

// BodyCursor pages an endpoint whose body holds the records under field plus
// "cursor" and "has_next". A cursor is followed only while has_next is true.
func BodyCursor[T any](field string) PageCursor[T] {
	return PageCursor[T]{
		Param: "cursor",
		Decode: func(resp *transport.RawResponse) (Page[T], error) {
			var envelope map[string]json.RawMessage
			if err := DecodeJSON(resp.Body, &envelope); err != nil {
				return Page[T]{}, err
			}

			rawItems, ok := envelope[field]
			if !ok {
				return Page[T]{}, &DecodeError{Kind: KindSchemaMismatch, Err: fmt.Errorf("missing field %q", field)}
			}
			var items []T
			if err := DecodeJSON(rawItems, &items); err != nil {
				return Page[T]{}, err
			}

			var meta struct {
				Cursor  string `json:"cursor"`
				HasNext *bool  `json:"has_next"`
			}
			if err := DecodeJSON(resp.Body, &meta); err != nil {
				return Page[T]{}, err
			}

			page := Page[T]{Items: items}
			if meta.HasNext == nil || *meta.HasNext {
				page.Next = Token(meta.Cursor)
			}
			return page, nil
		},
	}
}

// StartingAfterCursor pages a v2 endpoint with a "data" array and a
// "pagination" object.
func StartingAfterCursor[T any]() PageCursor[T] {
	return PageCursor[T]{
		Param: "starting_after",
		Decode: func(resp *transport.RawResponse) (Page[T], error) {
			var envelope struct {
				Data       *[]T `json:"data"`
				Pagination *struct {
					NextStartingAfter *string `json:"next_starting_after"`
				} `json:"pagination"`
			}
			if err := DecodeJSON(resp.Body, &envelope); err != nil {
				return Page[T]{}, err
			}
			if envelope.Data == nil {
				return Page[T]{}, &DecodeError{Kind: KindSchemaMismatch, Err: errors.New(`missing field "data"`)}
			}

			page := Page[T]{Items: *envelope.Data}
			if envelope.Pagination != nil && envelope.Pagination.NextStartingAfter != nil {
				page.Next = Token(*envelope.Pagination.NextStartingAfter)
			}
			return page, nil
		},
	}
}

// SinglePage decodes an endpoint that is not paged at all, optionally
// unwrapping field. The resulting page is always terminal.
func SinglePage[T any](field string) PageCursor[T] {
	return PageCursor[T]{
		Decode: func(resp *transport.RawResponse) (Page[T], error) {
			body := resp.Body
			if field != "" {
				var envelope map[string]json.RawMessage
				if err := DecodeJSON(body, &envelope); err != nil {
					return Page[T]{}, err
				}
				raw, ok := envelope[field]
				if !ok {
					return Page[T]{}, &DecodeError{Kind: KindSchemaMismatch, Err: fmt.Errorf("missing field %q", field)}
				}
				body = raw
			}
			var items []T
			if err := DecodeJSON(body, &items); err != nil {
				return Page[T]{}, err
			}
			return Page[T]{Items: items}, nil
		},
	}
}

// DecodeJSON unmarshals data into v, classifying failures as a *DecodeError.
func DecodeJSON(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &DecodeError{Kind: KindMalformed, Err: io.ErrUnexpectedEOF}
	}
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{Kind: KindSchemaMismatch, Err: err}
	}
	return &DecodeError{Kind: KindMalformed, Err: err}
}
