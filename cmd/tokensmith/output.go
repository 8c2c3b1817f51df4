package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brojonat/tokensmith/client"
	"github.com/dustin/go-humanize"
	solanasvc "github.com/brojonat/tokensmith/service/solana"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// render writes v as JSON when --json or --jq is set, and calls human
// otherwise.
func render(c *cli.Context, v interface{}, human func(w io.Writer)) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		return writeJQ(w, filter, v)
	}
	if c.Bool("json") {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	human(w)
	return nil
}

// writeJQ runs filter over the JSON form of v and writes each result on its
// own line. String results are written raw.
func writeJQ(w io.Writer, filter string, v interface{}) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq works on plain maps and slices, not structs.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return fmt.Errorf("failed to decode output: %w", err)
	}

	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := out.(error); isErr {
			return fmt.Errorf("jq filter failed: %w", err)
		}
		if s, isString := out.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		b, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(b))
	}
}

// toSubmission converts a local submit result into the shape the server
// returns, so local and remote commands print the same thing.
func toSubmission(r *solanasvc.SubmitResult) *client.Submission {
	if r == nil {
		return nil
	}
	sub := &client.Submission{
		Signature:            r.Signature.String(),
		Blockhash:            r.Blockhash.String(),
		LastValidBlockHeight: r.LastValidBlockHeight,
		FeePayer:             r.FeePayer.String(),
		ConfirmationStatus:   r.StatusString(),
	}
	if r.Status != nil {
		sub.Status = &client.Status{
			Slot:               r.Status.Slot,
			ConfirmationStatus: r.Status.ConfirmationStatus,
			Err:                r.Status.Err,
		}
	}
	if r.Mint != nil {
		sub.Mint = r.Mint.String()
	}
	if r.Metadata != nil {
		sub.Metadata = r.Metadata.String()
	}
	if r.TokenAccount != nil {
		sub.TokenAccount = r.TokenAccount.String()
	}
	return sub
}

func printSubmission(title string, sub *client.Submission) func(w io.Writer) {
	return func(w io.Writer) {
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "✓ %s\n", title)
		fmt.Fprintln(w, rule)
		fmt.Fprintf(w, "Signature:     %s\n", sub.Signature)
		fmt.Fprintf(w, "Fee Payer:     %s\n", sub.FeePayer)
		fmt.Fprintf(w, "Status:        %s\n", sub.ConfirmationStatus)
		if sub.Status != nil {
			fmt.Fprintf(w, "Slot:          %d\n", sub.Status.Slot)
		}
		if sub.Mint != "" {
			fmt.Fprintf(w, "Mint:          %s\n", sub.Mint)
		}
		if sub.Metadata != "" {
			fmt.Fprintf(w, "Metadata:      %s\n", sub.Metadata)
		}
		if sub.TokenAccount != "" {
			fmt.Fprintf(w, "Token Account: %s\n", sub.TokenAccount)
		}
		fmt.Fprintf(w, "Blockhash:     %s (valid through height %d)\n", sub.Blockhash, sub.LastValidBlockHeight)
		fmt.Fprintln(w, rule)
	}
}

func printEvent(w io.Writer, e *client.SubmissionEvent) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Kind:       %s\n", e.Kind)
	fmt.Fprintf(w, "Wallet:     %s\n", e.WalletAddress)
	fmt.Fprintf(w, "Network:    %s\n", e.Network)
	if e.Signature != "" {
		fmt.Fprintf(w, "Signature:  %s\n", e.Signature)
	}
	fmt.Fprintf(w, "Status:     %s\n", e.ConfirmationStatus)
	if e.Mint != "" {
		fmt.Fprintf(w, "Mint:       %s\n", e.Mint)
	}
	if e.Receiver != "" {
		fmt.Fprintf(w, "Receiver:   %s\n", e.Receiver)
	}
	if e.Amount != 0 {
		fmt.Fprintf(w, "Amount:     %d\n", e.Amount)
	}
	if e.Error != "" {
		fmt.Fprintf(w, "Error:      %s (%s)\n", e.Error, e.ErrorKind)
	}
	fmt.Fprintf(w, "Published:  %s (%s)\n", e.PublishedAt.Format(time.RFC3339), humanize.Time(e.PublishedAt))
	fmt.Fprintln(w)
}

// streamOutput reports whether events should be written one JSON object per
// line.
func streamOutput(c *cli.Context) bool {
	return c.Bool("json") || strings.TrimSpace(c.String("jq")) != ""
}

// writeEvent writes a streamed event in the selected output format.
func writeEvent(c *cli.Context, e *client.SubmissionEvent) error {
	w := c.App.Writer
	if filter := c.String("jq"); filter != "" {
		return writeJQ(w, filter, e)
	}
	if c.Bool("json") {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	printEvent(w, e)
	return nil
}
