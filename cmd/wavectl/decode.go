package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chaz8081/wavelink/internal/engine"
	"github.com/chaz8081/wavelink/internal/packet"
)

// Decode flags
var (
	decodeFraming   string
	decodeSizeWidth int
	decodeByteOrder string
	decodeNoSummary bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [capture-file]",
	Short: "Replay a hex capture through the packet engine",
	Long: `Reads notification fragments from a capture file (or stdin), one
fragment per line as hex. Whitespace and ':' separators are ignored and
'#' starts a comment. The whole capture goes through one engine, one line
per Feed call exactly as the transport would deliver it, and every
dispatched event is printed.

Layout flags override the engine section of the config file.`,
	Example: `  wavectl decode capture.hex
  echo "02 02 01 00 57" | wavectl decode
  wavectl decode capture.hex --framing cobs --size-width 2 --byte-order little`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().StringVar(&decodeFraming, "framing", "", "frame delimiting: length or cobs")
	decodeCmd.Flags().IntVar(&decodeSizeWidth, "size-width", 0, "payload_size width in bytes: 1, 2 or 4")
	decodeCmd.Flags().StringVar(&decodeByteOrder, "byte-order", "", "payload_size byte order: little or big")
	decodeCmd.Flags().BoolVar(&decodeNoSummary, "no-summary", false, "skip the event count table")
}

func runDecode(cmd *cobra.Command, args []string) error {
	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	fragments, err := parseCapture(in)
	if err != nil {
		return err
	}

	engCfg := *cfg
	if decodeFraming != "" {
		engCfg.Engine.Framing = decodeFraming
	}
	if decodeSizeWidth != 0 {
		engCfg.Engine.SizeWidth = decodeSizeWidth
	}
	if decodeByteOrder != "" {
		engCfg.Engine.ByteOrder = decodeByteOrder
	}
	opts, err := engCfg.EngineOptions()
	if err != nil {
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	if err := decodeFragments(fragments, opts, p); err != nil {
		return err
	}
	if decodeNoSummary {
		return nil
	}
	return p.summary()
}

// decodeFragments feeds fragments through an engine that never writes.
func decodeFragments(fragments [][]byte, opts engine.Options, p *printer) error {
	eng := engine.New(func(context.Context, []byte) error { return nil }, opts)
	defer eng.Close()
	p.attach(eng)

	for i, frag := range fragments {
		err := eng.Feed(frag)
		p.drain(eng.Errors())
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i+1, err)
		}
	}
	if n := eng.Buffered(); n > 0 {
		p.reportError(fmt.Errorf("capture ends inside a frame: %d bytes left over: %w", n, packet.ErrTruncated))
	}
	return nil
}

// parseCapture reads one hex fragment per non-empty line.
func parseCapture(r io.Reader) ([][]byte, error) {
	var fragments [][]byte
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		text = strings.Map(func(r rune) rune {
			switch r {
			case ' ', '\t', ':', '\r':
				return -1
			}
			return r
		}, text)
		if text == "" {
			continue
		}
		b, err := hex.DecodeString(text)
		if err != nil {
			return nil, fmt.Errorf("capture line %d: %w", line, err)
		}
		fragments = append(fragments, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading capture: %w", err)
	}
	return fragments, nil
}
