// Command fxdump inspects Fast Transfer streams: it prints their elements,
// decompresses RTF bodies and exports messages as .eml files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andreyvit/mapi/capture"
	"github.com/andreyvit/mapi/propval"
)

type app struct {
	logger *slog.Logger

	verbose   bool
	isCapture bool
	chunkSize int
	rowFormat bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "fxdump",
		Short:         "Inspect Fast Transfer streams",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if a.verbose {
				level = slog.LevelDebug
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
		},
	}
	pflags := root.PersistentFlags()
	pflags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug messages")

	streamFlags := func(cmd *cobra.Command) {
		flags := cmd.Flags()
		flags.BoolVar(&a.isCapture, "capture", false, "FILE is a capture file rather than a raw stream")
		flags.IntVar(&a.chunkSize, "chunk", 4096, "feed a raw stream to the parser in chunks of this many bytes")
		flags.BoolVar(&a.rowFormat, "row", false, "property values use the row buffer format")
	}

	dumpCmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the elements of a stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dump(cmd.OutOrStdout(), args[0])
		},
	}
	streamFlags(dumpCmd)

	var rtfOut string
	var rtfCompress bool
	rtfCmd := &cobra.Command{
		Use:   "rtf FILE",
		Short: "Decompress (or compress) a PidTagRtfCompressed value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.rtf(cmd.OutOrStdout(), args[0], rtfOut, rtfCompress)
		},
	}
	rtfCmd.Flags().StringVarP(&rtfOut, "out", "o", "", "write to this file instead of stdout")
	rtfCmd.Flags().BoolVar(&rtfCompress, "compress", false, "compress plain RTF instead")

	var eo exportOptions
	exportCmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write the messages of a stream as .eml files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.export(cmd.OutOrStdout(), args[0], eo)
		},
	}
	streamFlags(exportCmd)
	exportCmd.Flags().StringVar(&eo.outDir, "out", "", "output directory")
	exportCmd.Flags().StringVar(&eo.cache, "cache", "", "also store messages in this cache database")
	exportCmd.Flags().StringVar(&eo.folder, "folder", "default", "cache folder name")
	exportCmd.Flags().StringVar(&eo.mailbox, "mailbox", "default", "cache mailbox name for named properties")
	exportCmd.Flags().Uint32Var(&eo.codepage, "codepage", 0, "codepage of narrow strings without a declared one")
	exportCmd.MarkFlagRequired("out")

	captureCmd := &cobra.Command{
		Use:   "capture SRC DST",
		Short: "Split a raw stream into a capture file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.record(args[0], args[1])
		},
	}
	captureCmd.Flags().IntVar(&a.chunkSize, "chunk", 4096, "record chunks of this many bytes")
	captureCmd.Flags().BoolVar(&a.rowFormat, "row", false, "property values use the row buffer format")

	root.AddCommand(dumpCmd, rtfCmd, exportCmd, captureCmd)
	return root
}

func (a *app) format() propval.Format {
	if a.rowFormat {
		return propval.Row
	}
	return propval.Stream
}

// source is an opened stream: a raw file or a capture.
type source struct {
	format propval.Format
	raw    []byte
	chunk  int
	cap    *capture.Reader
}

func (a *app) open(path string) (*source, error) {
	if a.isCapture {
		r, err := capture.Open(path, capture.Options{Logger: a.logger})
		if err != nil {
			return nil, err
		}
		return &source{format: r.Format(), cap: r}, nil
	}
	if a.chunkSize <= 0 {
		return nil, fmt.Errorf("--chunk must be positive")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &source{format: a.format(), raw: data, chunk: a.chunkSize}, nil
}

// each calls f with every chunk of the stream.
func (s *source) each(f func([]byte) error) error {
	if s.cap != nil {
		for {
			c, err := s.cap.Next()
			if err == io.EOF {
				return nil
			} else if err != nil {
				return err
			}
			if err := f(c.Data); err != nil {
				return err
			}
		}
	}
	for data := s.raw; len(data) > 0; {
		n := min(len(data), s.chunk)
		if err := f(data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (s *source) Close() error {
	if s.cap != nil {
		return s.cap.Close()
	}
	return nil
}

func (a *app) record(src, dst string) error {
	w, err := capture.Create(dst, capture.Options{Logger: a.logger, Format: a.format()})
	if err != nil {
		return err
	}
	err = a.copyTo(src, w)
	if err == nil {
		err = w.Sync()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func (a *app) copyTo(src string, w *capture.Writer) error {
	s, err := a.open(src)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.each(w.WriteChunk)
}
