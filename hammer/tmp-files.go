package hammer

import (
	"bufio"
	"io"
	"os"

	"github.com/klauspost/pgzip"

	"github.com/exascience/elassemble/internal"
)

// tmpWriter stacks a buffered, optionally compressed writer on a
// temporary file.
type tmpWriter struct {
	file *os.File
	gz   *pgzip.Writer
	*bufio.Writer
}

func (ctx *Context) createTmp(name string) *tmpWriter {
	w := &tmpWriter{file: internal.FileCreate(name)}
	if ctx.GZip {
		w.gz = pgzip.NewWriter(w.file)
		w.Writer = bufio.NewWriterSize(w.gz, 1<<ctx.FileBufferExp)
	} else {
		w.Writer = bufio.NewWriterSize(w.file, 1<<ctx.FileBufferExp)
	}
	return w
}

func (w *tmpWriter) Close() {
	if err := w.Flush(); err != nil {
		internal.Close(w.file)
		panic(err)
	}
	if w.gz != nil {
		internal.Close(w.gz)
	}
	internal.Close(w.file)
}

// tmpReader is the reading counterpart of tmpWriter.
type tmpReader struct {
	file *os.File
	gz   *pgzip.Reader
	*bufio.Scanner
}

func (ctx *Context) openTmp(name string) *tmpReader {
	r := &tmpReader{file: internal.FileOpen(name)}
	var src io.Reader = r.file
	if ctx.GZip {
		gz, err := pgzip.NewReader(r.file)
		if err != nil {
			internal.Close(r.file)
			panic(err)
		}
		r.gz = gz
		src = gz
	}
	r.Scanner = bufio.NewScanner(src)
	r.Buffer(make([]byte, 1<<ctx.FileBufferExp), 1<<ctx.FileBufferExp)
	return r
}

func (r *tmpReader) Close() {
	if r.gz != nil {
		internal.Close(r.gz)
	}
	internal.Close(r.file)
}
