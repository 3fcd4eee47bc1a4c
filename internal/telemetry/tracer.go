package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys used on DittoCache spans.
const (
	// ========================================================================
	// RPC
	// ========================================================================
	AttrRPCSelector  = "rpc.selector"
	AttrRPCProcedure = "rpc.procedure"
	AttrRPCCallUID   = "rpc.call_uid"
	AttrRPCSuccess   = "rpc.success"

	// ========================================================================
	// Cache & Transfer
	// ========================================================================
	AttrContentID   = "content.id"
	AttrSourceKind  = "content.kind"
	AttrCacheHit    = "cache.hit"
	AttrCacheSize   = "cache.size"
	AttrRequired    = "cache.required"
	AttrChunks      = "transfer.chunks"
	AttrBytes       = "transfer.bytes"
	AttrContinuous  = "transfer.continuous"
)

// Span names.
const (
	SpanRPCServe      = "rpc.serve"
	SpanTransfer      = "transfer.run"
	SpanTransferProbe = "transfer.probe"
	SpanCacheQueue    = "cache.queue"
	SpanCacheLocate   = "cache.locate"
	SpanCacheFree     = "cache.free_space"
)

// Event names recorded on transfer spans.
const (
	EventStreamable = "streamable"
)

// ContentID returns an attribute for a content id
func ContentID(id string) attribute.KeyValue {
	return attribute.String(AttrContentID, id)
}

// SourceKind returns an attribute for the content-id kind prefix
func SourceKind(kind string) attribute.KeyValue {
	return attribute.String(AttrSourceKind, kind)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// Bytes returns an attribute for a transferred byte count
func Bytes(n int64) attribute.KeyValue {
	return attribute.Int64(AttrBytes, n)
}

// Chunks returns an attribute for a chunk count
func Chunks(n int) attribute.KeyValue {
	return attribute.Int(AttrChunks, n)
}

func Continuous(continuous bool) attribute.KeyValue {
	return attribute.Bool(AttrContinuous, continuous)
}

// CacheSize returns an attribute for the bytes currently accounted to the cache
func CacheSize(n int64) attribute.KeyValue {
	return attribute.Int64(AttrCacheSize, n)
}

// Required returns an attribute for the bytes a request needs
func Required(n int64) attribute.KeyValue {
	return attribute.Int64(AttrRequired, n)
}

func RPCSuccess(ok bool) attribute.KeyValue {
	return attribute.Bool(AttrRPCSuccess, ok)
}

// StartRPCSpan starts a server span for one RPC call.
func StartRPCSpan(ctx context.Context, procedure string, selector uint32, uid uint64) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanRPCServe,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String(AttrRPCProcedure, procedure),
			attribute.Int64(AttrRPCSelector, int64(selector)),
			attribute.Int64(AttrRPCCallUID, int64(uid)),
		))
}

// StartTransferSpan starts a span covering one download attempt.
func StartTransferSpan(ctx context.Context, contentID, kind string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanTransfer, trace.WithAttributes(ContentID(contentID), SourceKind(kind)))
}

// StartCacheSpan starts a span for a cache manager operation.
func StartCacheSpan(ctx context.Context, name, contentID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(attrs)+1)
	if contentID != "" {
		all = append(all, ContentID(contentID))
	}
	all = append(all, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(all...))
}
