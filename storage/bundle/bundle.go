package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"xdao.co/ipfs-simple/cidutil"
	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/storage"
)

// FormatVersion is the current bundle index schema version.
const FormatVersion = 1

var epoch0 = time.Unix(0, 0).UTC()

// Source is where Export reads content from. *client.Client satisfies it.
type Source interface {
	FetchBytes(ctx context.Context, id string, opts ...client.CallOption) ([]byte, error)
}

// Sink is where Import publishes content to. *client.Client satisfies it.
type Sink interface {
	PublishBytes(ctx context.Context, data []byte, opts ...client.CallOption) (string, error)
}

// ExportOptions controls bundle export behavior.
type ExportOptions struct {
	// Labels is optional, non-authoritative metadata mapping names to identifiers.
	Labels map[string]string
	// IncludeIndex controls whether index.json is included.
	IncludeIndex bool
}

// Export writes a deterministic TAR bundle containing the content for the
// given identifiers, fetched through src.
//
// The bundle bytes are deterministic: entry order is lexicographic and TAR
// headers are normalized. Only CIDv1 raw sha2-256 identifiers can be bundled,
// and all exported bytes are validated against them.
func Export(ctx context.Context, w io.Writer, src Source, ids []string, opts ExportOptions) error {
	if src == nil {
		return fmt.Errorf("bundle: nil source")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, s := range ids {
		id, err := rawIdentifier(s)
		if err != nil {
			return err
		}
		uniq[id.String()] = id
	}

	cidStrings := make([]string, 0, len(uniq))
	for s := range uniq {
		cidStrings = append(cidStrings, s)
	}
	sort.Strings(cidStrings)

	tw := tar.NewWriter(w)

	blocks := make([]indexBlock, 0, len(cidStrings))
	for _, s := range cidStrings {
		id := uniq[s]
		b, err := src.FetchBytes(ctx, s)
		if err != nil {
			_ = tw.Close()
			return err
		}
		got, err := cidutil.CIDv1RawSHA256CID(b)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if !got.Equals(id) {
			_ = tw.Close()
			return fmt.Errorf("bundle: %s: %w", s, storage.ErrCIDMismatch)
		}

		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			_ = tw.Close()
			return err
		}
		blocks = append(blocks, indexBlock{CID: s, Size: len(b)})
	}

	if opts.IncludeIndex {
		idx := indexJSON{
			Version:   FormatVersion,
			CIDCodec:  "raw",
			Multihash: "sha2-256",
			Blocks:    blocks,
		}

		if len(opts.Labels) > 0 {
			keys := make([]string, 0, len(opts.Labels))
			for k := range opts.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			labels := make([]indexLabel, 0, len(keys))
			for _, k := range keys {
				if k == "" {
					_ = tw.Close()
					return fmt.Errorf("bundle: empty label key")
				}
				v, err := cidutil.ParseIdentifier(opts.Labels[k])
				if err != nil {
					_ = tw.Close()
					return err
				}
				labels = append(labels, indexLabel{Name: k, CID: v.String()})
			}
			idx.Labels = labels
		}

		b, err := marshalCanonicalIndexJSON(idx)
		if err != nil {
			_ = tw.Close()
			return err
		}
		if err := writeFile(tw, "index.json", b); err != nil {
			_ = tw.Close()
			return err
		}
	}

	return tw.Close()
}

// ImportOptions controls bundle import behavior.
type ImportOptions struct {
	// IgnoreUnknown controls whether unknown TAR entries are ignored.
	//
	// Default (false) is fail-closed: unknown entries cause Import to return an error.
	IgnoreUnknown bool
}

// Imported records one published block. PublishedAs is the identifier the
// sink reported, which a gateway may compute with its own DAG layout.
type Imported struct {
	ID          string
	PublishedAs string
}

// Import reads a bundle from r and publishes every block to dst.
//
// Default behavior is fail-closed: unknown entries cause an error.
func Import(ctx context.Context, r io.Reader, dst Sink) ([]Imported, error) {
	return ImportWithOptions(ctx, r, dst, ImportOptions{})
}

// ImportWithOptions reads a bundle from r and publishes every block to dst.
//
// It validates that each block's bytes match the CID in its entry name before
// publishing.
func ImportWithOptions(ctx context.Context, r io.Reader, dst Sink, opts ImportOptions) ([]Imported, error) {
	if dst == nil {
		return nil, fmt.Errorf("bundle: nil sink")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	var out []Imported

	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return out, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}

		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return out, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		// Non-authoritative metadata.
		if name == "index.json" {
			_, _ = io.Copy(io.Discard, tr)
			continue
		}

		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return out, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := rawIdentifier(strings.TrimPrefix(name, "blocks/"))
		if err != nil {
			return out, err
		}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return out, err
		}
		got, err := cidutil.CIDv1RawSHA256CID(payload)
		if err != nil {
			return out, err
		}
		if !got.Equals(id) {
			return out, storage.ErrCIDMismatch
		}

		key := id.String()
		if _, ok := seen[key]; ok {
			return out, fmt.Errorf("bundle: duplicate block entry: %s", key)
		}
		seen[key] = struct{}{}

		published, err := dst.PublishBytes(ctx, payload)
		if err != nil {
			return out, err
		}
		out = append(out, Imported{ID: key, PublishedAs: published})
	}
}

// rawIdentifier parses s and requires a CIDv1 raw sha2-256 identifier.
func rawIdentifier(s string) (cid.Cid, error) {
	id, err := cidutil.ParseIdentifier(s)
	if err != nil {
		return cid.Undef, err
	}
	if id.Version() != 1 || id.Type() != cid.Raw || id.Prefix().MhType != mh.SHA2_256 {
		return cid.Undef, fmt.Errorf("bundle: %s is not a raw sha2-256 identifier: %w", s, storage.ErrInvalidCID)
	}
	return id, nil
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalCanonicalIndexJSON(idx indexJSON) ([]byte, error) {
	// indexJSON is composed only of structs + slices; encoding/json will be deterministic.
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}

	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return strings.Join(parts, "/")
}
