package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// genesisHash anchors the chain so an empty report still has a
// verifiable head.
const genesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// sealChain links every record to its predecessor. Record hashes
// cover the record content plus the previous hash, so moving,
// editing, or dropping any record breaks verification of all
// records after it.
func sealChain(r *Report) {
	prev := genesisHash
	for i := range r.Records {
		r.Records[i].PrevHash = prev
		r.Records[i].Hash = recordHash(r.Records[i])
		prev = r.Records[i].Hash
	}
	r.ChainHead = prev
}

// Verify recomputes the chain and reports the first record that does
// not match. A nil return means the report is intact.
func Verify(r *Report) error {
	prev := genesisHash
	for i, rec := range r.Records {
		if rec.PrevHash != prev {
			return fmt.Errorf("record %d (%s): prev hash mismatch", i, rec.EventKey)
		}
		if got := recordHash(rec); got != rec.Hash {
			return fmt.Errorf("record %d (%s): content hash mismatch", i, rec.EventKey)
		}
		prev = rec.Hash
	}
	if r.ChainHead != prev {
		return fmt.Errorf("chain head mismatch: report says %s, recomputed %s", r.ChainHead, prev)
	}
	return nil
}

// recordHash hashes the canonical JSON of the record with its own
// Hash field cleared. Struct field order is fixed, so the encoding is
// stable.
func recordHash(rec Record) string {
	rec.Hash = ""
	raw, err := json.Marshal(rec)
	if err != nil {
		// Record holds only plain values; Marshal cannot fail on it.
		panic(err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
