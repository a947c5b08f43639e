package ledger

import (
	"encoding/binary"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"agroledger/pkg/domain"
)

// ReadingHash derives the content address for a reading: a CIDv1 string
// using the raw multicodec over a sha2-256 multihash of the deterministically
// serialized tuple (device identity, farm id, temperature, moisture,
// humidity, item index within the submission call).
//
// The index disambiguates items inside one call, so byte-identical sensor
// fields submitted in two separate calls at different positions still
// collide only when the whole tuple repeats. This guards against
// exact-replay patterns within a call, not semantic duplicates across
// legitimate observations.
func ReadingHash(device domain.Identity, farmID uint64, temperature int16, moisture, humidity uint16, index int) string {
	buf := make([]byte, 0, len(device)+8+2+2+2+8)
	buf = append(buf, device...)
	buf = binary.BigEndian.AppendUint64(buf, farmID)
	buf = binary.BigEndian.AppendUint16(buf, uint16(temperature))
	buf = binary.BigEndian.AppendUint16(buf, moisture)
	buf = binary.BigEndian.AppendUint16(buf, humidity)
	buf = binary.BigEndian.AppendUint64(buf, uint64(index))

	sum, err := multihash.Sum(buf, multihash.SHA2_256, -1)
	if err != nil {
		// multihash.Sum cannot fail for SHA2_256 with default length.
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, sum).String()
}
