// Package script parses and runs telegram scripts.
//
// A script is a text file with one step per line:
//
//	# bring the bus up at 1.5 Mbit/s
//	reset
//	config 1500000
//	sdr 10 02 4D 01 4E 16
//	sdn! 68 05 05 68 82 02 6D 00 00 F1 16
//	poll
//
// Keywords:
//   - reset: synchronous software reset
//   - config <baud>: switch the Profibus baud rate
//   - sdn <hex>, sdr <hex>: send a telegram and wait for the reply
//   - sdn! <hex>, sdr! <hex>: send without waiting
//   - poll: wait for the reply of an asynchronous send, bounded by the
//     engine's reply timeout; with nothing outstanding it checks once
//
// Everything after # is a comment. Hex bytes may be separated by spaces.
//
// # Usage
//
//	s, err := script.Parse("startup.txt")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = script.Run(ctx, engine, s, func(r script.Result) {
//	    fmt.Printf("%-30s -> %v\n", r.Step, r.Reply)
//	})
//
// # Validation
//
// The parser rejects unknown keywords, unsupported baud rates, malformed
// hex and telegrams longer than 255 bytes, reporting the offending line.
package script
