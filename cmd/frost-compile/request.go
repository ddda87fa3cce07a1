package main

import (
	"fmt"

	"github.com/goccy/go-json"

	frost "github.com/pbaumard/FROST-Server"
	"github.com/pbaumard/FROST-Server/internal/expression"
)

// request is the JSON form of a query. Expressions use the node format of
// expression.DecodeJSON.
type request struct {
	Filter  json.RawMessage `json:"filter"`
	OrderBy []struct {
		Expr json.RawMessage `json:"expr"`
		Desc bool            `json:"desc"`
	} `json:"orderby"`
	Select []string `json:"select"`
	Top    int      `json:"top"`
	Skip   int      `json:"skip"`
	Count  bool     `json:"count"`
}

func parseRequest(data []byte) (frost.Query, error) {
	var (
		req request
		q   frost.Query
	)
	if err := json.Unmarshal(data, &req); err != nil {
		return q, fmt.Errorf("invalid query document: %w", err)
	}
	if len(req.Filter) > 0 && string(req.Filter) != "null" {
		filter, err := expression.DecodeJSON(req.Filter)
		if err != nil {
			return q, fmt.Errorf("filter: %w", err)
		}
		q.Filter = filter
	}
	for i, o := range req.OrderBy {
		e, err := expression.DecodeJSON(o.Expr)
		if err != nil {
			return q, fmt.Errorf("orderby %d: %w", i+1, err)
		}
		q.OrderBy = append(q.OrderBy, frost.OrderBy{Expr: e, Descending: o.Desc})
	}
	q.Select = req.Select
	q.Top = req.Top
	q.Skip = req.Skip
	q.Count = req.Count
	return q, nil
}
