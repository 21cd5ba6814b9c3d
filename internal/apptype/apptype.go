package apptype

import "time"

// BaseLabel is attached to every entity in the graph. Records imported
// from older databases may lack it; NewLabelSet restores it.
const BaseLabel = "Memory"

// EmbeddingKind names one of the vector views kept per entity.
type EmbeddingKind string

const (
	KindContent      EmbeddingKind = "content"
	KindObservations EmbeddingKind = "observations"
	KindIdentity     EmbeddingKind = "identity"
)

// Kinds returns every embedding kind in canonical order.
func Kinds() []EmbeddingKind {
	return []EmbeddingKind{KindContent, KindObservations, KindIdentity}
}

// ValidKind reports whether k names a known embedding view.
func ValidKind(k EmbeddingKind) bool {
	switch k {
	case KindContent, KindObservations, KindIdentity:
		return true
	}
	return false
}

// LabelSet is an ordered, duplicate-free set of type tags. A well-formed
// LabelSet always carries BaseLabel first.
type LabelSet []string

// NewLabelSet builds a LabelSet from caller-supplied labels, forcing
// BaseLabel to the front and dropping duplicates while preserving order.
func NewLabelSet(labels ...string) LabelSet {
	out := LabelSet{BaseLabel}
	seen := map[string]struct{}{BaseLabel: {}}
	for _, l := range labels {
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Has reports membership.
func (ls LabelSet) Has(label string) bool {
	for _, l := range ls {
		if l == label {
			return true
		}
	}
	return false
}

// Union appends labels not already present, preserving order, and
// reports whether the set grew. Existing labels are never removed.
func (ls LabelSet) Union(labels []string) (LabelSet, bool) {
	out := NewLabelSet(ls...)
	grew := len(out) != len(ls)
	for _, l := range labels {
		if l == "" || out.Has(l) {
			continue
		}
		out = append(out, l)
		grew = true
	}
	return out, grew
}

// UserLabels returns the labels minus BaseLabel, in order.
func (ls LabelSet) UserLabels() []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		if l != BaseLabel {
			out = append(out, l)
		}
	}
	return out
}

// Entity represents a node in the knowledge graph. Name is the identity
// key; no two entities share one. Embeddings and the indexing timestamp
// are internal state and stay off the wire.
type Entity struct {
	Name         string                      `json:"name"`
	Labels       LabelSet                    `json:"labels"`
	Observations []string                    `json:"observations"`
	Embeddings   map[EmbeddingKind][]float32 `json:"-"`
	IndexedAt    *time.Time                  `json:"-"`
}

// FullyIndexed reports whether all embedding views are present.
func (e Entity) FullyIndexed() bool {
	for _, k := range Kinds() {
		if len(e.Embeddings[k]) == 0 {
			return false
		}
	}
	return true
}

// Relation represents a directed, typed edge between two entity
// identity keys. The tuple (From, To, RelationType) is unique.
type Relation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relationType"`
}

// KnowledgeGraph is the subgraph shape returned by every read operation:
// entities plus the relations whose endpoints are both present.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// ScoredEntity pairs an entity with its similarity score for one
// embedding view.
type ScoredEntity struct {
	Entity Entity  `json:"entity"`
	Score  float64 `json:"score"`
}

// ObservationAddition asks for new facts to be appended to an entity.
type ObservationAddition struct {
	EntityName string   `json:"entityName"`
	Contents   []string `json:"contents"`
}

// ObservationDelta reports exactly the observations a request added,
// not the entity's full list.
type ObservationDelta struct {
	EntityName        string   `json:"entityName"`
	AddedObservations []string `json:"addedObservations"`
}

// ObservationDeletion asks for specific facts to be removed.
type ObservationDeletion struct {
	EntityName   string   `json:"entityName"`
	Observations []string `json:"observations"`
}
