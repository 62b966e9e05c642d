package vectorindex

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io/fs"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustFlat(t *testing.T, dim int, vecs ...[]float32) *Flat {
	t.Helper()
	f, err := NewFlat(dim)
	require.NoError(t, err)
	for _, v := range vecs {
		_, err := f.Add(v)
		require.NoError(t, err)
	}
	return f
}

func TestNewFlat(t *testing.T) {
	_, err := NewFlat(0)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	f, err := NewFlat(3)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Dimension())
	assert.Equal(t, 0, f.Size())
}

func TestAdd_AssignsSequentialIDs(t *testing.T) {
	f := mustFlat(t, 2)
	for want := int64(0); want < 5; want++ {
		id, err := f.Add([]float32{float32(want), 0})
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, 5, f.Size())

	v, ok := f.Vector(3)
	require.True(t, ok)
	assert.Equal(t, []float32{3, 0}, v)

	_, ok = f.Vector(5)
	assert.False(t, ok)
}

func TestAdd_RejectsBadVectors(t *testing.T) {
	f := mustFlat(t, 2)

	_, err := f.Add([]float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrWrongDimension)

	_, err = f.Add([]float32{float32(math.NaN()), 0})
	assert.ErrorIs(t, err, ErrInvalidVector)

	assert.Equal(t, 0, f.Size(), "failed adds must not grow the index")
}

func TestSearch_OrdersBySquaredL2(t *testing.T) {
	f := mustFlat(t, 2,
		[]float32{10, 10}, // 0
		[]float32{1, 0},   // 1
		[]float32{0, 0},   // 2
		[]float32{3, 4},   // 3
	)

	got, err := f.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, []Neighbor{
		{ID: 2, Distance: 0},
		{ID: 1, Distance: 1},
		{ID: 3, Distance: 25},
	}, got)
}

func TestSearch_TiesByID(t *testing.T) {
	f := mustFlat(t, 1, []float32{1}, []float32{-1}, []float32{1}, []float32{5})

	got, err := f.Search([]float32{0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, []int64{got[0].ID, got[1].ID})
}

func TestSearch_KLargerThanSize(t *testing.T) {
	f := mustFlat(t, 1, []float32{1}, []float32{2})

	got, err := f.Search([]float32{0}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSearch_Errors(t *testing.T) {
	f := mustFlat(t, 2, []float32{1, 1})

	_, err := f.Search([]float32{0, 0}, 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = f.Search([]float32{0}, 1)
	assert.ErrorIs(t, err, ErrWrongDimension)

	empty := mustFlat(t, 2)
	got, err := empty.Search([]float32{0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_MatchesBruteForce(t *testing.T) {
	f := mustFlat(t, 4)
	for i := 0; i < 200; i++ {
		x := float32(i)
		_, err := f.Add([]float32{float32(math.Sin(float64(x))), float32(math.Cos(float64(x))), x / 200, 1 - x/200})
		require.NoError(t, err)
	}

	query := []float32{0.3, -0.2, 0.5, 0.5}
	got, err := f.Search(query, 10)
	require.NoError(t, err)
	require.Len(t, got, 10)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Distance, got[i].Distance)
	}
	// Nothing outside the result may be closer than the last hit
	inResult := map[int64]bool{}
	for _, n := range got {
		inResult[n.ID] = true
	}
	last := got[len(got)-1].Distance
	for id := int64(0); id < int64(f.Size()); id++ {
		if inResult[id] {
			continue
		}
		v, _ := f.Vector(id)
		assert.GreaterOrEqual(t, squaredL2(query, v), last)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	f := mustFlat(t, 3, []float32{1, 2, 3}, []float32{-1.5, 0, 1e-7})

	var buf bytes.Buffer
	n, err := f.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(HeaderSize+2*3*4), n)
	assert.Equal(t, "RSVEC001", buf.String()[:8])

	got, err := ReadFlat(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Dimension(), got.Dimension())
	assert.Equal(t, f.Size(), got.Size())
	assert.Equal(t, f.data, got.data)
}

func TestCodec_Corrupt(t *testing.T) {
	_, err := ReadFlat(bytes.NewReader([]byte("short")))
	assert.ErrorIs(t, err, ErrCorrupt)

	bad := make([]byte, HeaderSize)
	copy(bad, "NOTMAGIC")
	_, err = ReadFlat(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrCorrupt)

	f := mustFlat(t, 2, []float32{1, 2})
	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)
	truncated := buf.Bytes()[:buf.Len()-2]
	_, err = ReadFlat(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrCorrupt)

	trailing := append(bytes.Clone(buf.Bytes()), 0)
	_, err = ReadFlat(bytes.NewReader(trailing))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestCodec_CountOverflow(t *testing.T) {
	header := func(dim, count uint64) []byte {
		h := make([]byte, HeaderSize)
		copy(h, "RSVEC001")
		binary.LittleEndian.PutUint64(h[8:16], dim)
		binary.LittleEndian.PutUint64(h[16:24], count)
		return h
	}

	// count*dim wraps to zero in uint64
	_, err := ReadFlat(bytes.NewReader(header(1<<16, 1<<48)))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = ReadFlat(bytes.NewReader(header(2, math.MaxUint64)))
	assert.ErrorIs(t, err, ErrCorrupt)

	empty, err := ReadFlat(bytes.NewReader(header(2, 0)))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Size())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vectors.bin")
	f := mustFlat(t, 2, []float32{1, 2}, []float32{3, 4})
	require.NoError(t, f.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Size())

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
