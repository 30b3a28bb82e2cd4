package indexer

import (
	"strings"

	"corpus-ai/internal/storage"
)

const (
	// DefaultNearDupJaccard is the shingle-overlap threshold above which
	// two chunks count as the same content.
	DefaultNearDupJaccard = 0.9
	// DefaultNearDupWindow bounds how many recent chunks are held for
	// near-duplicate comparison.
	DefaultNearDupWindow = 512
	// shingleSize is the word n-gram width used for near-dup shingles.
	shingleSize = 5
)

// DeduperOptions tunes duplicate detection. Zero values take the package
// defaults.
type DeduperOptions struct {
	JaccardThreshold float64
	Window           int
}

// Deduper detects exact and near duplicates across concurrently ingested
// documents. Every fingerprint is tracked with its owning document id, so a
// document never counts as a duplicate of itself: re-ingesting a modified
// file keeps its unchanged chunks, and the same bytes at a second path map
// to the same document id rather than erasing the first copy.
//
// IsDuplicate is a pure check. Callers record a document's surviving chunks
// with Commit only after the index write succeeds, which also retires the
// fingerprints the document no longer produces. All state lives behind a
// single goroutine fed by a request channel, so callers from any worker see
// one consistent view with no locks.
type Deduper struct {
	requests chan dedupRequest
	done     chan struct{}
}

type dedupOp int

const (
	opCheck dedupOp = iota
	opCommit
	opRetire
)

type dedupRequest struct {
	op          dedupOp
	documentID  string
	replacesID  string       // opCheck: prior id of the same source, also self
	fingerprint string       // opCheck
	canonical   string       // opCheck
	committed   []ownedChunk // opCommit
	reply       chan bool
}

type ownedChunk struct {
	fingerprint string
	canonical   string
}

type shingledChunk struct {
	documentID string
	shingles   map[string]struct{}
}

// NewDeduper starts the dedup goroutine, pre-populated with the fingerprint
// ownership of already indexed chunks.
func NewDeduper(opts DeduperOptions, seed []storage.FingerprintOwner) *Deduper {
	if opts.JaccardThreshold <= 0 || opts.JaccardThreshold > 1 {
		opts.JaccardThreshold = DefaultNearDupJaccard
	}
	if opts.Window <= 0 {
		opts.Window = DefaultNearDupWindow
	}

	d := &Deduper{
		requests: make(chan dedupRequest),
		done:     make(chan struct{}),
	}

	owners := make(map[string]string, len(seed))
	byDoc := make(map[string]map[string]struct{})
	for _, fp := range seed {
		owners[fp.Fingerprint] = fp.DocumentID
		if byDoc[fp.DocumentID] == nil {
			byDoc[fp.DocumentID] = make(map[string]struct{})
		}
		byDoc[fp.DocumentID][fp.Fingerprint] = struct{}{}
	}

	go d.run(opts, owners, byDoc)
	return d
}

// IsDuplicate reports whether the chunk's content is already owned by a
// different document, either as an exact fingerprint match or as a near
// duplicate of a recently committed chunk. Document ids are content-hash
// derived, so a modified file arrives under a new id; replacesID names the
// id it is replacing, whose chunks also count as the document's own. It
// records nothing; the caller commits survivors after the index write.
func (d *Deduper) IsDuplicate(documentID, replacesID, fingerprint, text string) bool {
	req := dedupRequest{
		op:          opCheck,
		documentID:  documentID,
		replacesID:  replacesID,
		fingerprint: fingerprint,
		canonical:   CanonicalForHash(text),
		reply:       make(chan bool, 1),
	}
	select {
	case d.requests <- req:
		return <-req.reply
	case <-d.done:
		return false
	}
}

// Commit records the document's surviving chunk set after a successful index
// write. Fingerprints from the document's previous ingest that are absent
// from the new set are retired, mirroring the chunk replacement in the index.
func (d *Deduper) Commit(documentID string, fingerprints, texts []string) {
	committed := make([]ownedChunk, len(fingerprints))
	for i, fp := range fingerprints {
		committed[i] = ownedChunk{fingerprint: fp}
		if i < len(texts) {
			committed[i].canonical = CanonicalForHash(texts[i])
		}
	}
	req := dedupRequest{
		op:         opCommit,
		documentID: documentID,
		committed:  committed,
		reply:      make(chan bool, 1),
	}
	select {
	case d.requests <- req:
		<-req.reply
	case <-d.done:
	}
}

// Retire drops every fingerprint owned by the document. Called when a
// document's rows are deleted because its content hash changed.
func (d *Deduper) Retire(documentID string) {
	req := dedupRequest{
		op:         opRetire,
		documentID: documentID,
		reply:      make(chan bool, 1),
	}
	select {
	case d.requests <- req:
		<-req.reply
	case <-d.done:
	}
}

// Close stops the dedup goroutine. Pending IsDuplicate calls return false.
func (d *Deduper) Close() {
	close(d.done)
}

func (d *Deduper) run(opts DeduperOptions, owners map[string]string, byDoc map[string]map[string]struct{}) {
	var recent []shingledChunk

	for {
		select {
		case <-d.done:
			return
		case req := <-d.requests:
			switch req.op {
			case opCheck:
				req.reply <- isDuplicateLocked(req, owners, recent, opts.JaccardThreshold)
			case opCommit:
				recent = commitLocked(req, owners, byDoc, recent, opts.Window)
				req.reply <- true
			case opRetire:
				recent = retireLocked(req.documentID, owners, byDoc, recent)
				req.reply <- true
			}
		}
	}
}

func isDuplicateLocked(req dedupRequest, owners map[string]string, recent []shingledChunk, threshold float64) bool {
	self := func(id string) bool {
		return id == req.documentID || (req.replacesID != "" && id == req.replacesID)
	}
	if owner, ok := owners[req.fingerprint]; ok {
		return !self(owner)
	}
	shingles := wordShingles(req.canonical, shingleSize)
	for _, prev := range recent {
		if self(prev.documentID) {
			continue
		}
		if jaccard(shingles, prev.shingles) >= threshold {
			return true
		}
	}
	return false
}

func commitLocked(req dedupRequest, owners map[string]string, byDoc map[string]map[string]struct{}, recent []shingledChunk, window int) []shingledChunk {
	recent = retireLocked(req.documentID, owners, byDoc, recent)

	set := make(map[string]struct{}, len(req.committed))
	for _, c := range req.committed {
		owners[c.fingerprint] = req.documentID
		set[c.fingerprint] = struct{}{}
		if shingles := wordShingles(c.canonical, shingleSize); len(shingles) > 0 {
			recent = append(recent, shingledChunk{documentID: req.documentID, shingles: shingles})
		}
	}
	byDoc[req.documentID] = set

	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	return recent
}

func retireLocked(documentID string, owners map[string]string, byDoc map[string]map[string]struct{}, recent []shingledChunk) []shingledChunk {
	for fp := range byDoc[documentID] {
		if owners[fp] == documentID {
			delete(owners, fp)
		}
	}
	delete(byDoc, documentID)

	kept := recent[:0]
	for _, c := range recent {
		if c.documentID != documentID {
			kept = append(kept, c)
		}
	}
	return kept
}

// wordShingles returns the set of n-word shingles in text. Texts shorter than
// n words produce a single shingle of the whole text.
func wordShingles(text string, n int) map[string]struct{} {
	words := strings.Fields(text)
	shingles := make(map[string]struct{})
	if len(words) == 0 {
		return shingles
	}
	if len(words) < n {
		shingles[strings.Join(words, " ")] = struct{}{}
		return shingles
	}
	for i := 0; i+n <= len(words); i++ {
		shingles[strings.Join(words[i:i+n], " ")] = struct{}{}
	}
	return shingles
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for s := range small {
		if _, ok := large[s]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
