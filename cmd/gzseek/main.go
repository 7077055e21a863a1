package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rasky/gzstream"
	"github.com/rasky/gzstream/internal/config"
	"github.com/rasky/gzstream/internal/observability"
	"github.com/rasky/gzstream/internal/offset"
)

const VERSION = "1.0"

var flagOffset = pflag.Int64P("offset", "o", 0, "start reading at this offset of the decoded content")
var flagWhence = pflag.StringP("whence", "w", "start", "offset is relative to: start, current or end")
var flagLines = pflag.IntP("lines", "n", 10, "number of lines to print (0 for all)")
var flagResume = pflag.BoolP("resume", "r", false, "start where the previous run stopped, and remember where this one stops")
var flagState = pflag.String("state", "", "state file used by --resume")
var flagIndex = pflag.BoolP("index", "i", false, "build and print the seek index")
var flagVerify = pflag.BoolP("verify", "t", false, "verify that seeking returns the same data as a plain decompression")
var flagConfig = pflag.StringP("config", "c", "", "configuration file")
var flagVerbose = pflag.BoolP("verbose", "v", false, "verbose mode")
var flagVersion = pflag.BoolP("version", "V", false, "display version number")
var flagHelp = pflag.BoolP("help", "h", false, "give this help")

const (
	ModePrint = iota
	ModeIndex
	ModeVerify
	ModeList
)

var Mode = ModePrint
var Files []string
var RunID = uuid.New().String()

var (
	cfg    *config.Config
	log    zerolog.Logger
	stream *gzstream.Stream
	store  *offset.Store
)

func main() {
	pflag.Parse()
	if *flagHelp {
		Usage()
		return
	}
	if *flagVersion {
		fmt.Println("gzseek", VERSION)
		return
	}

	Files = pflag.Args()
	switch {
	case len(Files) == 0 && *flagResume:
		Mode = ModeList
	case len(Files) == 0:
		Usage()
		os.Exit(1)
	case *flagVerify:
		Mode = ModeVerify
	case *flagIndex:
		Mode = ModeIndex
	}

	var err error
	cfg, err = config.Load(*flagConfig)
	if err != nil {
		fatal(err)
		os.Exit(1)
	}
	if *flagVerbose {
		cfg.LogLevel = "debug"
	}
	if *flagState != "" {
		cfg.StatePath = *flagState
	}
	log = observability.InitLogger(cfg.LogLevel).With().Str("run", RunID).Logger()

	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "gzseek",
		ServiceVersion: VERSION,
		Endpoint:       cfg.Tracing.Endpoint,
		Protocol:       cfg.Tracing.Protocol,
		Enabled:        cfg.Tracing.Enabled,
	})
	if err != nil {
		fatal(err)
		os.Exit(1)
	}

	ctx := SetSignalHandler()
	code := Run(ctx)
	if err := shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("flushing traces")
	}
	os.Exit(code)
}

// SetSignalHandler returns a context that is cancelled on the first
// termination signal, so that --resume still records where reading stopped.
func SetSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func fatal(args ...interface{}) {
	fmt.Fprint(os.Stderr, "gzseek: ")
	fmt.Fprintln(os.Stderr, args...)
}

func Run(ctx context.Context) int {
	stream = gzstream.NewStream(cfg.Options(log)...)

	if *flagResume && (Mode == ModePrint || Mode == ModeList) {
		var err error
		store, err = offset.Open(cfg.StatePath)
		if err != nil {
			fatal(err)
			return 1
		}
		defer store.Close()
	}
	if Mode == ModeList {
		if err := printOffsets(os.Stdout, store); err != nil {
			fatal(err)
			return 1
		}
		return 0
	}

	for _, fn := range Files {
		if ctx.Err() != nil {
			return 1
		}
		if !processFile(ctx, fn) {
			return 1
		}
	}
	return 0
}

func processFile(ctx context.Context, fn string) bool {
	ctx, span := observability.StartSpan(ctx, "gzseek.file",
		attribute.String("file", fn),
		attribute.String("run", RunID))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	if err = stream.Open(fn); err != nil {
		fatal(err)
		return false
	}
	defer stream.Close()
	span.SetAttributes(attribute.String("mode", stream.Mode().String()))
	log.Debug().Str("file", fn).Stringer("mode", stream.Mode()).Msg("processing")

	switch Mode {
	case ModePrint:
		err = printLines(ctx, fn)
	case ModeIndex:
		err = printIndex(ctx, fn)
	case ModeVerify:
		err = verify(ctx, fn)
	}
	if err != nil {
		fatal(fn+":", err)
		return false
	}
	return true
}

func parseWhence(s string) (int, error) {
	switch strings.ToLower(s) {
	case "start", "set", "begin":
		return io.SeekStart, nil
	case "current", "cur":
		return io.SeekCurrent, nil
	case "end":
		return io.SeekEnd, nil
	}
	return 0, errors.NotValidf("whence %q (use start, current or end)", s)
}

func printLines(ctx context.Context, fn string) error {
	whence, err := parseWhence(*flagWhence)
	if err != nil {
		return err
	}
	off := *flagOffset
	if store != nil {
		saved, found, err := store.Get(fn)
		if err != nil {
			return err
		}
		if found {
			off, whence = saved, io.SeekStart
			log.Info().Str("file", fn).Int64("offset", off).Msg("resuming")
		}
	}

	_, span := observability.StartSpan(ctx, "gzseek.seek", attribute.Int64("offset", off))
	_, err = stream.Seek(off, whence)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	buf := make([]byte, 1<<20)
	for n := 0; *flagLines == 0 || n < *flagLines; n++ {
		if ctx.Err() != nil {
			break
		}
		line, ok := stream.ReadLine(buf)
		if !ok {
			break
		}
		w.Write(line)
		if len(line) < len(buf) {
			w.WriteByte('\n')
		}
	}
	if stream.Fail() {
		return stream.Err()
	}

	if store != nil {
		pos := stream.Tell()
		if stream.EOF() {
			// Nothing left: start over next time.
			return store.Delete(fn)
		}
		return store.Set(fn, pos)
	}
	return nil
}

func printIndex(ctx context.Context, fn string) error {
	_, span := observability.StartSpan(ctx, "gzseek.index")
	length, err := stream.Seek(0, io.SeekEnd)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s, %d bytes\n", fn, stream.Mode(), length)
	idx := stream.Index()
	if stream.Mode() == gzstream.ModeRaw {
		return nil
	}
	fmt.Printf("%d synchpoints\n", len(idx))
	fmt.Printf("%16s %16s\n", "compressed", "decompressed")
	for _, pt := range idx {
		fmt.Printf("%16d %16d\n", pt.Compressed, pt.Decompressed)
	}
	return nil
}

// printOffsets lists the files that --resume would not start from the
// beginning.
func printOffsets(w io.Writer, st *offset.Store) error {
	offsets, err := st.List()
	if err != nil {
		return err
	}
	files := make([]string, 0, len(offsets))
	for fn := range offsets {
		files = append(files, fn)
	}
	sort.Strings(files)
	for _, fn := range files {
		fmt.Fprintf(w, "%16d %s\n", offsets[fn], fn)
	}
	return nil
}

func Usage() {
	// pflag.Usage sorts by long name and shows "[=false]" next to booleans.
	fmt.Print(`Usage: gzseek [OPTION]... FILE...
  or:  gzseek --resume [--state=FILE]
Print lines at any offset of plain or gzip-compressed FILEs.

Offsets always refer to the decoded content.

  -o, --offset=N     start reading at offset N (default 0)
  -w, --whence=W     N is relative to: start, current or end (default start)
  -n, --lines=N      print N lines; 0 prints until the end (default 10)
  -r, --resume       start where the previous run stopped, and remember where
                     this one stops; without FILEs, list the saved offsets
      --state=FILE   state file used by --resume
  -i, --index        build and print the seek index
  -t, --verify       verify that seeking returns the same data as a plain
                     decompression
  -c, --config=FILE  configuration file
  -v, --verbose      verbose mode
  -V, --version      display version number
  -h, --help         give this help

Settings can also be given in the environment: GZSEEK_CHUNK_SIZE,
GZSEEK_MAX_CHUNK_SIZE, GZSEEK_SPAN, GZSEEK_OUTPUT_SIZE, GZSEEK_STATE,
GZSEEK_LOG_LEVEL, GZSEEK_TRACING_ENABLED, GZSEEK_TRACING_ENDPOINT and
GZSEEK_TRACING_PROTOCOL.
`, "\n")
}
