package dsxml

import (
	"context"
	"io/ioutil"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
)

// Read loads and parses a dataset record from path. A ".gz" suffix selects
// transparent gzip decompression. Paths may name any filesystem base/file
// supports, including s3:// URLs.
func Read(ctx context.Context, path string) (doc *Document, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, in, &err)
	var data []byte
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(in.Reader(ctx))
		if err != nil {
			return nil, errors.E(err, "dsxml: open gzip", path)
		}
		defer gz.Close() // nolint: errcheck
		data, err = ioutil.ReadAll(gz)
		if err != nil {
			return nil, err
		}
	} else {
		data, err = ioutil.ReadAll(in.Reader(ctx))
		if err != nil {
			return nil, err
		}
	}
	return Unmarshal(data)
}

// Write serializes doc to path, gzip-compressed when path ends in ".gz".
func Write(ctx context.Context, path string, doc *Document) (err error) {
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := out.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(w)
		if _, err := gz.Write(data); err != nil {
			return err
		}
		return gz.Close()
	}
	_, err = w.Write(data)
	return err
}
