package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/graphmem/mcp-graphmem-go/internal/apptype"
)

// kindColumn maps an embedding view to its entities column.
var kindColumn = map[apptype.EmbeddingKind]string{
	apptype.KindContent:      "content_embedding",
	apptype.KindObservations: "observation_embedding",
	apptype.KindIdentity:     "identity_embedding",
}

// vectorToString converts a float32 slice to the textual form accepted
// by the libSQL vector32() function. NaN and Inf components are
// replaced with zero so the blob stays well formed.
func (s *Store) vectorToString(vec []float32) (string, error) {
	if len(vec) != s.config.EmbeddingDims {
		return "", apptype.Validationf("embedding has %d dimensions, store expects %d", len(vec), s.config.EmbeddingDims)
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		fmt.Fprintf(&sb, "%g", f)
	}
	sb.WriteByte(']')
	return sb.String(), nil
}

// extractVector decodes a little-endian F32_BLOB column value.
func extractVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}
