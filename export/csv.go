package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"

	"github.com/hb9tf/vnasweep/vna"
)

const sep = ","

// CSV keeps one file per trace in Dir. The first line of a file holds the
// windowed frequencies behind an empty state column, every following line one
// state's values. Lines end with a trailing separator.
type CSV struct {
	Dir string

	mu    sync.Mutex
	files map[string]*traceFile
}

type traceFile struct {
	f *os.File
	// width is the number of frequency columns in the header.
	width int
}

// NewCSV creates dir if needed.
func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %s", ErrPersistence, dir, err)
	}
	return &CSV{
		Dir:   dir,
		files: map[string]*traceFile{},
	}, nil
}

func joinValues(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = vna.FormatGHz(v)
	}
	return strings.Join(parts, sep)
}

// WriteHeaderIfAbsent creates name with a header row of freqs. A file that
// already exists keeps its header, even if freqs differ.
func (c *CSV) WriteHeaderIfAbsent(name string, freqs []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.open(name, freqs)
	return err
}

// open returns the handle for name, creating the file with a header from
// freqs if it does not exist. With freqs nil a missing file is an error.
func (c *CSV) open(name string, freqs []float64) (*traceFile, error) {
	if tf, ok := c.files[name]; ok {
		return tf, nil
	}
	path := filepath.Join(c.Dir, name)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		tf, err := adopt(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
		}
		glog.Infof("appending to existing trace file %s (%d columns)", path, tf.width)
		c.files[name] = tf
		return tf, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	case freqs == nil:
		return nil, fmt.Errorf("%w: %s has no header", ErrPersistence, path)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	if _, err := f.WriteString(sep + joinValues(freqs) + sep + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: writing header of %s: %s", ErrPersistence, path, err)
	}
	tf := &traceFile{f: f, width: len(freqs)}
	c.files[name] = tf
	return tf, nil
}

// adopt opens an existing trace file for appending and learns its width
// from the header. A last line cut short is terminated so new rows start on
// their own line.
func adopt(path string) (*traceFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0)
	if err != nil {
		return nil, err
	}
	header, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("reading header of %s: %s", path, err)
	}
	fields := strings.Split(strings.TrimRight(header, "\r\n"), sep)
	if len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 2 || fields[0] != "" {
		f.Close()
		return nil, fmt.Errorf("%s does not start with a frequency header", path)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, st.Size()-1); err != nil {
		f.Close()
		return nil, err
	}
	if last[0] != '\n' {
		glog.Warningf("%s ends with an incomplete line, terminating it", path)
		if _, err := f.WriteString("\n"); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &traceFile{f: f, width: len(fields) - 1}, nil
}

// AppendRow appends "state,v0,...,vn," to name. The row is rejected
// unwritten if its length differs from the header.
func (c *CSV) AppendRow(name string, state int, values []float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	tf, err := c.open(name, nil)
	if err != nil {
		return err
	}
	if len(values) != tf.width {
		return fmt.Errorf("%w: %s expects %d values, got %d", ErrPersistence, name, tf.width, len(values))
	}
	line := strconv.Itoa(state) + sep + joinValues(values) + sep + "\n"
	if _, err := tf.f.WriteString(line); err != nil {
		return fmt.Errorf("%w: appending to %s: %s", ErrPersistence, name, err)
	}
	return nil
}

func (c *CSV) Write(ctx context.Context, row *vna.Row) error {
	if err := c.WriteHeaderIfAbsent(row.File, row.Freqs); err != nil {
		return err
	}
	return c.AppendRow(row.File, row.State, row.Values)
}

// Files returns the trace files written so far.
func (c *CSV) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for n := range c.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs *multierror.Error
	for name, tf := range c.files {
		if err := tf.f.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(c.files, name)
	}
	return errs.ErrorOrNil()
}

// WriteSnapshot writes a single capture as "freq,value," lines. An existing
// file is left alone and reported as not written.
func WriteSnapshot(dir, name string, freqs, values []float64) (bool, error) {
	if len(freqs) != len(values) {
		return false, fmt.Errorf("%w: %d frequencies for %d values", ErrPersistence, len(freqs), len(values))
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return false, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	w := bufio.NewWriter(f)
	for i := range freqs {
		w.WriteString(vna.FormatGHz(freqs[i]) + sep + vna.FormatGHz(values[i]) + sep + "\n")
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return false, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("%w: %s", ErrPersistence, err)
	}
	return true, nil
}
