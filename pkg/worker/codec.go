package worker

import (
	"bytes"
	"fmt"

	xdr "github.com/rasky/go-xdr/xdr2"

	"github.com/marmos91/dittocache/pkg/cachemanager"
	"github.com/marmos91/dittocache/pkg/metadata"
	"github.com/marmos91/dittocache/pkg/rpc"
)

// Stats is the CacheStats reply.
type Stats struct {
	TotalBytes int64
	MaxBytes   int64
	Tracked    uint32
	Queued     uint32
	Residue    uint32
	Active     string
}

func statsFrom(s cachemanager.Stats) Stats {
	return Stats{
		TotalBytes: s.TotalBytes,
		MaxBytes:   s.MaxBytes,
		Tracked:    uint32(s.Tracked),
		Queued:     uint32(s.Queued),
		Residue:    uint32(s.Residue),
		Active:     s.Active,
	}
}

type cacheInfoList struct {
	Entries []metadata.CacheInfo
}

// encode marshals v, a struct value, into a bytes Value.
func encode(v any) (rpc.Value, error) {
	var buf bytes.Buffer
	if _, err := xdr.Marshal(&buf, v); err != nil {
		return rpc.Value{}, fmt.Errorf("failed to encode %T: %w", v, err)
	}
	return rpc.Bytes(buf.Bytes()), nil
}

// decode unmarshals a bytes Value into out, a struct pointer.
func decode(v rpc.Value, out any) error {
	data, err := v.AsBytes()
	if err != nil {
		return err
	}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), out); err != nil {
		return fmt.Errorf("failed to decode %T: %w", out, err)
	}
	return nil
}

func argString(args []rpc.Value, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	return args[i].AsString()
}

func argInt(args []rpc.Value, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	return args[i].AsInt()
}
