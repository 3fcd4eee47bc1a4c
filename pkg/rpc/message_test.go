package rpc

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallEncoding(t *testing.T) {
	call := &Call{
		UID:      1700000000123,
		Selector: 23,
		Args: []Value{
			String("file$/music/a.flac"),
			Int(-7),
			Bool(true),
			Bytes([]byte{0xde, 0xad, 0xbe}),
			Void(),
		},
	}

	data, err := MarshalCall(call)
	require.NoError(t, err)
	assert.Zero(t, len(data)%4, "XDR output is 4-byte aligned")

	decoded, err := UnmarshalCall(data)
	require.NoError(t, err)
	assert.Equal(t, call.UID, decoded.UID)
	assert.Equal(t, call.Selector, decoded.Selector)
	require.Len(t, decoded.Args, len(call.Args))

	id, err := decoded.Args[0].AsString()
	require.NoError(t, err)
	assert.Equal(t, "file$/music/a.flac", id)

	n, err := decoded.Args[1].AsInt()
	require.NoError(t, err)
	assert.EqualValues(t, -7, n)

	b, err := decoded.Args[2].AsBool()
	require.NoError(t, err)
	assert.True(t, b)

	raw, err := decoded.Args[3].AsBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe}, raw)

	assert.True(t, decoded.Args[4].IsVoid())
}

func TestResponseEncoding(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		data, err := MarshalResponse(&Response{UID: 9, Success: true, Result: String("/cache/x")})
		require.NoError(t, err)

		resp, err := UnmarshalResponse(data)
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.EqualValues(t, 9, resp.UID)
		path, err := resp.Result.AsString()
		require.NoError(t, err)
		assert.Equal(t, "/cache/x", path)
	})

	t.Run("Failure", func(t *testing.T) {
		data, err := MarshalResponse(&Response{UID: 10, Error: "not found"})
		require.NoError(t, err)

		resp, err := UnmarshalResponse(data)
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Equal(t, "not found", resp.Error)
	})

	t.Run("Truncated", func(t *testing.T) {
		data, err := MarshalResponse(&Response{UID: 11, Success: true, Result: Int(1)})
		require.NoError(t, err)

		_, err = UnmarshalResponse(data[:len(data)-2])
		assert.Error(t, err)
	})
}

func TestMalformedCall(t *testing.T) {
	t.Run("HugeArgumentCount", func(t *testing.T) {
		data := make([]byte, 16)
		binary.BigEndian.PutUint64(data[0:8], 77)
		binary.BigEndian.PutUint32(data[8:12], 1)
		binary.BigEndian.PutUint32(data[12:16], 1<<30)

		_, err := UnmarshalCall(data)
		assert.Error(t, err)

		uid, ok := peekUID(data)
		assert.True(t, ok)
		assert.EqualValues(t, 77, uid)
	})

	t.Run("UnknownValueKind", func(t *testing.T) {
		data := make([]byte, 20)
		binary.BigEndian.PutUint64(data[0:8], 1)
		binary.BigEndian.PutUint32(data[12:16], 1)
		binary.BigEndian.PutUint32(data[16:20], 99)

		_, err := UnmarshalCall(data)
		assert.Error(t, err)
	})

	t.Run("TooShortForUID", func(t *testing.T) {
		_, ok := peekUID([]byte{1, 2, 3})
		assert.False(t, ok)
	})
}

func TestValueAccessors(t *testing.T) {
	_, err := Int(3).AsString()
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = Void().AsBool()
	assert.ErrorIs(t, err, ErrTypeMismatch)

	assert.Equal(t, "int", KindInt.String())
	assert.Equal(t, "3", Int(3).String())
}

func TestFraming(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, []byte("abcd")))
		require.NoError(t, WriteFrame(&buf, nil))

		assert.Equal(t, []byte{0x80, 0, 0, 4}, buf.Bytes()[:4])

		first, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, []byte("abcd"), first)

		second, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Empty(t, second)

		_, err = ReadFrame(&buf)
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("JoinsFragments", func(t *testing.T) {
		var buf bytes.Buffer
		buf.Write([]byte{0, 0, 0, 2, 'a', 'b'})
		buf.Write([]byte{0x80, 0, 0, 1, 'c'})

		frame, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), frame)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0x80, 0, 0, 8, 'a'})
		_, err := ReadFrame(buf)
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})

	t.Run("TooLarge", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0xff, 0xff, 0xff, 0xff})
		_, err := ReadFrame(buf)
		assert.ErrorIs(t, err, ErrFrameTooLarge)

		err = WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})
}

func TestOversizedOpaqueIsRejected(t *testing.T) {
	data := make([]byte, 24)
	binary.BigEndian.PutUint64(data[0:8], 5)
	binary.BigEndian.PutUint32(data[12:16], 1)
	binary.BigEndian.PutUint32(data[16:20], uint32(KindBytes))
	binary.BigEndian.PutUint32(data[20:24], 1<<31)

	_, err := UnmarshalCall(data)
	assert.Error(t, err)
}
