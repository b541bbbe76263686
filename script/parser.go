package script

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/moffa90/go-cpphy/protocol"
)

// CommentPrefix starts a comment that runs to the end of the line.
const CommentPrefix = "#"

// DefaultStepCapacity is the initial capacity of the steps slice
const DefaultStepCapacity = 32

// Parse parses a script file from the given path.
//
// Example:
//
//	s, err := script.Parse("startup.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d steps\n", len(s.Steps))
func Parse(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader parses a script from any io.Reader.
func ParseReader(r io.Reader) (*Script, error) {
	scanner := bufio.NewScanner(r)
	s := &Script{Steps: make([]*Step, 0, DefaultStepCapacity)}

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		step, err := parseStep(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		step.Line = lineNum

		s.Steps = append(s.Steps, step)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("no steps found in script")
	}

	return s, nil
}

func stripComment(line string) string {
	if i := strings.Index(line, CommentPrefix); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// parseStep parses one non-empty line.
//
// Formats:
//
//	reset
//	config <baud>
//	sdn[!] <hex>
//	sdr[!] <hex>
//	poll
//
// Hex bytes may be separated by spaces: "sdr 10 02 4D" equals "sdr 10024D".
func parseStep(line string) (*Step, error) {
	fields := strings.Fields(line)
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	async := strings.HasSuffix(keyword, "!")
	keyword = strings.TrimSuffix(keyword, "!")

	step := &Step{Async: async}

	switch keyword {
	case "reset":
		step.Op = OpReset
	case "poll":
		step.Op = OpPoll
	case "config":
		step.Op = OpConfig
	case "sdn":
		step.Op = OpSDN
	case "sdr":
		step.Op = OpSDR
	default:
		return nil, fmt.Errorf("unknown step %q", fields[0])
	}

	if async && step.Op != OpSDN && step.Op != OpSDR {
		return nil, fmt.Errorf("%s cannot be asynchronous", step.Op)
	}

	switch step.Op {
	case OpReset, OpPoll:
		if len(args) != 0 {
			return nil, fmt.Errorf("%s takes no arguments", step.Op)
		}

	case OpConfig:
		if len(args) != 1 {
			return nil, fmt.Errorf("config takes one baud rate")
		}
		baud, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid baud rate %q: %w", args[0], err)
		}
		if _, err := protocol.BaudRateID(baud); err != nil {
			return nil, err
		}
		step.BaudRate = baud

	case OpSDN, OpSDR:
		telegram, err := hex.DecodeString(strings.Join(args, ""))
		if err != nil {
			return nil, fmt.Errorf("invalid hex data: %w", err)
		}
		if err := validTelegram(telegram); err != nil {
			return nil, err
		}
		step.Telegram = telegram
	}

	return step, nil
}
