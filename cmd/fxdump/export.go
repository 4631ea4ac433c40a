package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/andreyvit/mapi/fxparser"
	"github.com/andreyvit/mapi/lzfu"
	"github.com/andreyvit/mapi/msgexport"
	"github.com/andreyvit/mapi/namedprop"
	"github.com/andreyvit/mapi/store"
	"github.com/andreyvit/mapi/syncobj"
)

func (a *app) rtf(w io.Writer, path, out string, compress bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var result []byte
	if compress {
		result = lzfu.Compress(data)
	} else {
		result, err = lzfu.Decompress(data)
		if err != nil {
			return err
		}
	}
	if out != "" {
		return os.WriteFile(out, result, 0o644)
	}
	_, err = w.Write(result)
	return err
}

type exportOptions struct {
	outDir   string
	cache    string
	folder   string
	mailbox  string
	codepage uint32
}

func (a *app) export(w io.Writer, path string, o exportOptions) error {
	src, err := a.open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(o.outDir, 0o755); err != nil {
		return err
	}

	var cache *store.Store
	if o.cache != "" {
		cache, err = store.Open(o.cache, store.Options{Logger: a.logger})
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	names := namedprop.NewMap()
	if cache != nil {
		if _, err := cache.LoadNames(o.mailbox, names); err != nil {
			return err
		}
	}

	var written int
	save := func(m *syncobj.Message) error {
		if len(m.Props) == 0 && len(m.Attachments) == 0 {
			return nil
		}
		var buf bytes.Buffer
		if err := msgexport.Write(&buf, m, msgexport.Options{Logger: a.logger, Codepage: o.codepage}); err != nil {
			return fmt.Errorf("message %d: %w", written+1, err)
		}
		name := msgexport.FileName(m, written+1)
		if err := os.WriteFile(filepath.Join(o.outDir, name), buf.Bytes(), 0o644); err != nil {
			return err
		}
		written++
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "fxdump: exported", slog.String("file", name))
		return nil
	}

	onMessage := func(m *syncobj.Message) error {
		if cache != nil && m.SourceKey() != nil {
			if err := cache.PutMessage(o.folder, m); err != nil {
				return err
			}
		}
		return save(m)
	}
	var onFolder func(f *syncobj.Folder) error
	onFolder = func(f *syncobj.Folder) error {
		for _, m := range f.Messages {
			if err := onMessage(m); err != nil {
				return err
			}
		}
		for _, sub := range f.Subfolders {
			if err := onFolder(sub); err != nil {
				return err
			}
		}
		return nil
	}

	var pending []*syncobj.Change
	b := syncobj.NewBuilder(syncobj.Options{
		Logger:    a.logger,
		OnMessage: onMessage,
		OnFolder:  onFolder,
		OnChange: func(c *syncobj.Change) error {
			pending = append(pending, c)
			if c.Message == nil {
				return nil
			}
			return save(c.Message)
		},
	})

	p := fxparser.New(fxparser.Options{Logger: a.logger, Format: src.format, NamedProps: names})
	if err := src.each(func(chunk []byte) error { return p.Parse(chunk, b.Handler()) }); err != nil {
		return err
	}
	if n := p.Buffered(); n > 0 {
		return fmt.Errorf("stream ends inside an element (%d bytes left at offset %d)", n, p.Offset())
	}
	if err := b.Finish(); err != nil {
		return err
	}

	if cache != nil {
		if err := cache.ApplyChanges(o.folder, pending); err != nil {
			return err
		}
		if sync := b.Sync(); sync.Done && len(sync.State) > 0 {
			if err := cache.PutState(o.folder, sync.State); err != nil {
				return err
			}
		}
		if err := cache.SaveNames(o.mailbox, names); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "exported %d messages to %s\n", written, o.outDir)
	return nil
}
