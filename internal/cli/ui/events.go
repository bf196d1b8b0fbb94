package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/conduit-lang/wsmodel/internal/metamodel/domain"
	"github.com/conduit-lang/wsmodel/internal/metamodel/flags"
)

// VerbColor returns the color used for an HTTP verb.
func VerbColor(verb string) *color.Color {
	switch verb {
	case "GET", "HEAD", "OPTIONS":
		return color.New(color.FgGreen)
	case "POST":
		return color.New(color.FgYellow)
	case "PUT":
		return color.New(color.FgBlue)
	case "DELETE":
		return color.New(color.FgRed)
	default:
		return color.New(color.FgMagenta)
	}
}

var eventSymbols = map[domain.EndpointEventKind]string{
	domain.EndpointAdded:   "+",
	domain.EndpointChanged: "~",
	domain.EndpointRemoved: "-",
}

func eventColor(kind domain.EndpointEventKind) *color.Color {
	switch kind {
	case domain.EndpointAdded:
		return color.New(color.FgGreen, color.Bold)
	case domain.EndpointRemoved:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow, color.Bold)
	}
}

// PrintEvents writes one line per endpoint event:
//
//	+ GET /items
//	~ GET /orders?max={int}  [QUERY_PARAM_ANNOTATION]
//	- PUT /items/{id}
func PrintEvents(w io.Writer, events []domain.EndpointEvent, noColor bool) {
	for _, ev := range events {
		symbol := eventColor(ev.Kind)
		if noColor {
			symbol.DisableColor()
		}
		symbol.Fprint(w, eventSymbols[ev.Kind])
		fmt.Fprintf(w, " %s", ev.Endpoint.DisplayTemplate())
		if ev.Flags != flags.None {
			fmt.Fprintf(w, "  [%s]", ev.Flags)
		}
		fmt.Fprintln(w)
	}
}

// EndpointTable renders endpoints as a table.
func EndpointTable(w io.Writer, endpoints []*domain.Endpoint, noColor bool) *Table {
	t := NewTable(w, noColor, "VERB", "PATH", "PARAMS", "PRODUCES", "METHOD")
	t.ColorColumn(0, VerbColor)
	for _, e := range endpoints {
		t.AddRow(e.Verb, e.PathTemplate, params(e), strings.Join(e.Produces, ","), e.ResourceMethod().String())
	}
	return t
}

func params(e *domain.Endpoint) string {
	var parts []string
	for _, p := range e.PathParams {
		parts = append(parts, "{"+p.Name+"}")
	}
	for _, p := range e.MatrixParams {
		parts = append(parts, ";"+p.Name)
	}
	for _, p := range e.QueryParams {
		parts = append(parts, "?"+p.Name)
	}
	return strings.Join(parts, " ")
}
