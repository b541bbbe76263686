package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-cpphy/hw/serial"
	"github.com/moffa90/go-cpphy/protocol"
	"github.com/moffa90/go-cpphy/script"
)

type stepRecord struct {
	Line    int    `yaml:"line"`
	Step    string `yaml:"step"`
	Reply   string `yaml:"reply,omitempty"`
	Payload string `yaml:"payload,omitempty"`
}

type printer struct {
	w       io.Writer
	format  string
	records []stepRecord
	err     error
}

func newPrinter(w io.Writer, format string) *printer {
	return &printer{w: w, format: format}
}

// Print writes text immediately; yaml is collected until Flush.
func (p *printer) Print(r script.Result) {
	rec := stepRecord{Line: r.Step.Line, Step: r.Step.String()}
	if r.Reply != nil {
		rec.Reply = r.Reply.Control.String()
		if len(r.Reply.Payload) > 0 {
			rec.Payload = fmt.Sprintf("% 02X", r.Reply.Payload)
		}
	}

	if p.format == "yaml" {
		p.records = append(p.records, rec)
		return
	}

	var reply string
	switch {
	case r.Reply != nil:
		reply = r.Reply.String()
	case r.Step.Op == script.OpPoll:
		reply = "(no reply)"
	default:
		reply = "(pending)"
	}
	if _, err := fmt.Fprintf(p.w, "%-40s -> %s\n", rec.Step, reply); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *printer) Flush() error {
	if p.err != nil || p.format != "yaml" {
		return p.err
	}
	return encodeYAML(p.w, p.records)
}

func encodeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func printBaudRates(w io.Writer, format string) error {
	type entry struct {
		BaudRate int  `yaml:"baudRate"`
		ID       byte `yaml:"id"`
	}

	var entries []entry
	for _, baud := range protocol.SupportedBaudRates() {
		id, _ := protocol.BaudRateID(baud)
		entries = append(entries, entry{BaudRate: baud, ID: id})
	}

	if format == "yaml" {
		return encodeYAML(w, entries)
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%9d  %d\n", e.BaudRate, e.ID); err != nil {
			return err
		}
	}
	return nil
}

func printPorts(w io.Writer, format string) error {
	ports, err := serial.ListPorts()
	if err != nil {
		return fmt.Errorf("list serial ports: %w", err)
	}

	if format == "yaml" {
		return encodeYAML(w, ports)
	}
	for _, port := range ports {
		if _, err := fmt.Fprintln(w, port); err != nil {
			return err
		}
	}
	return nil
}
