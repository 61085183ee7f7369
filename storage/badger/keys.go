package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/voicevault/core"
)

// Key prefixes for different data types
const (
	postPrefix      = "post:"
	postUserPrefix  = "postu:"
	postIDSeq       = "postseq"
	filePrefix      = "file:"
	chunkPrefix     = "chunk:"
	chunkVecPrefix  = "chunkv:"
	chunkMissPrefix = "chunkm:"
	metadataPrefix  = "meta:"
	auditPrefix     = "audit:"
	auditPostPrefix = "auditp:"
	auditIDSeq      = "auditseq"
)

// makeKey appends each part to prefix as 8 big-endian bytes so that
// lexicographic key order matches numeric order.
func makeKey(prefix string, parts ...uint64) []byte {
	buf := make([]byte, len(prefix)+8*len(parts))
	offset := copy(buf, prefix)
	for _, p := range parts {
		binary.BigEndian.PutUint64(buf[offset:], p)
		offset += 8
	}
	return buf
}

// keyPart reads the i-th 8-byte part following prefix.
func keyPart(key []byte, prefix string, i int) uint64 {
	offset := len(prefix) + 8*i
	if len(key) < offset+8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[offset:])
}

func makePostKey(id core.ID) []byte {
	return makeKey(postPrefix, uint64(id))
}

// makePostUserKey indexes posts by owner and creation time.
// Format: prefix:userID:createdAt:postID
func makePostUserKey(userID core.UserID, createdAt time.Time, id core.ID) []byte {
	return makeKey(postUserPrefix, uint64(userID), uint64(createdAt.UnixMicro()), uint64(id))
}

func makePostUserPrefix(userID core.UserID) []byte {
	return makeKey(postUserPrefix, uint64(userID))
}

// makeFileKey generates the ledger key for (postID, role).
// Format: prefix:postID:role
func makeFileKey(postID core.ID, role core.FileRole) []byte {
	return append(makeFilePrefix(postID), role...)
}

func makeFilePrefix(postID core.ID) []byte {
	return makeKey(filePrefix, uint64(postID))
}

// makeChunkKey orders a post's chunks by index, which is start order.
// Format: prefix:postID:index
func makeChunkKey(postID core.ID, index int) []byte {
	return makeKey(chunkPrefix, uint64(postID), uint64(index))
}

func makeChunkPrefix(postID core.ID) []byte {
	return makeKey(chunkPrefix, uint64(postID))
}

func makeChunkVectorKey(postID core.ID, index int) []byte {
	return makeKey(chunkVecPrefix, uint64(postID), uint64(index))
}

// makeChunkMissingKey indexes chunks stored without an embedding.
// Format: prefix:chunkID:postID:index
func makeChunkMissingKey(chunkID, postID core.ID, index int) []byte {
	return makeKey(chunkMissPrefix, uint64(chunkID), uint64(postID), uint64(index))
}

func makeMetadataKey(postID core.ID) []byte {
	return makeKey(metadataPrefix, uint64(postID))
}

func makeAuditKey(id core.ID) []byte {
	return makeKey(auditPrefix, uint64(id))
}

// makeAuditPostKey links a post to the audit entries that reference it.
// Format: prefix:postID:auditID
func makeAuditPostKey(postID, auditID core.ID) []byte {
	return makeKey(auditPostPrefix, uint64(postID), uint64(auditID))
}

func makeAuditPostPrefix(postID core.ID) []byte {
	return makeKey(auditPostPrefix, uint64(postID))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processorType))
}

// prefixEnd returns the smallest key greater than every key with prefix.
// Used as the seek position for reverse iteration.
func prefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix)+32)
	n := copy(end, prefix)
	for i := n; i < len(end); i++ {
		end[i] = 0xff
	}
	return end
}
