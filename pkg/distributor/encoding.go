package distributor

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Fixed discriminator tags versioning the persisted record formats.
var (
	PolicyDiscriminator   = [8]byte{'i', 'f', 'd', 'p', 'o', 'l', 'v', '1'}
	ProgressDiscriminator = [8]byte{'i', 'f', 'd', 'p', 'r', 'g', 'v', '1'}
)

// Fixed record lengths: discriminator plus the little-endian field layout.
const (
	PolicyRecordLen   = 8 + 32*6 + 8 + 2 + 8 + 8
	ProgressRecordLen = 8 + 32 + 8 + 8 + 8 + 8 + 8 + 4 + 1 + 4
)

// MarshalPolicy encodes a policy into its fixed-width record form.
func MarshalPolicy(p Policy) []byte {
	buf := make([]byte, 0, PolicyRecordLen)
	buf = append(buf, PolicyDiscriminator[:]...)
	buf = append(buf, p.Vault[:]...)
	buf = append(buf, p.QuoteMint[:]...)
	buf = append(buf, p.CreatorWallet[:]...)
	buf = append(buf, p.CreatorATA[:]...)
	buf = append(buf, p.Treasury[:]...)
	buf = append(buf, p.TreasuryAuthority[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, p.TotalInvestorAllocation)
	buf = binary.LittleEndian.AppendUint16(buf, p.InvestorFeeShareBps)
	buf = binary.LittleEndian.AppendUint64(buf, p.DailyCapLamports)
	buf = binary.LittleEndian.AppendUint64(buf, p.MinPayoutLamports)
	return buf
}

// UnmarshalPolicy decodes a fixed-width policy record.
func UnmarshalPolicy(data []byte) (Policy, error) {
	if len(data) != PolicyRecordLen {
		return Policy{}, fmt.Errorf("policy record: want %d bytes, got %d", PolicyRecordLen, len(data))
	}
	if [8]byte(data[:8]) != PolicyDiscriminator {
		return Policy{}, fmt.Errorf("policy record: bad discriminator %x", data[:8])
	}
	var p Policy
	off := 8
	for _, key := range []*solana.PublicKey{
		&p.Vault, &p.QuoteMint, &p.CreatorWallet, &p.CreatorATA, &p.Treasury, &p.TreasuryAuthority,
	} {
		copy(key[:], data[off:off+32])
		off += 32
	}
	p.TotalInvestorAllocation = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.InvestorFeeShareBps = binary.LittleEndian.Uint16(data[off:])
	off += 2
	p.DailyCapLamports = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.MinPayoutLamports = binary.LittleEndian.Uint64(data[off:])
	return p, nil
}

// MarshalProgress encodes a progress record into its fixed-width form.
func MarshalProgress(p Progress) []byte {
	buf := make([]byte, 0, ProgressRecordLen)
	buf = append(buf, ProgressDiscriminator[:]...)
	buf = append(buf, p.Vault[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.LastDistributionTS))
	buf = binary.LittleEndian.AppendUint64(buf, p.CurrentDayClaimed)
	buf = binary.LittleEndian.AppendUint64(buf, p.CurrentDayDistributedInvestors)
	buf = binary.LittleEndian.AppendUint64(buf, p.CurrentDayDistributedCreator)
	buf = binary.LittleEndian.AppendUint64(buf, p.CarryOverDust)
	buf = binary.LittleEndian.AppendUint32(buf, p.PaginationCursor)
	if p.DayCompleted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = binary.LittleEndian.AppendUint32(buf, p.TotalInvestors)
	return buf
}

// UnmarshalProgress decodes a fixed-width progress record.
func UnmarshalProgress(data []byte) (Progress, error) {
	if len(data) != ProgressRecordLen {
		return Progress{}, fmt.Errorf("progress record: want %d bytes, got %d", ProgressRecordLen, len(data))
	}
	if [8]byte(data[:8]) != ProgressDiscriminator {
		return Progress{}, fmt.Errorf("progress record: bad discriminator %x", data[:8])
	}
	var p Progress
	off := 8
	copy(p.Vault[:], data[off:off+32])
	off += 32
	p.LastDistributionTS = int64(binary.LittleEndian.Uint64(data[off:]))
	off += 8
	p.CurrentDayClaimed = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.CurrentDayDistributedInvestors = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.CurrentDayDistributedCreator = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.CarryOverDust = binary.LittleEndian.Uint64(data[off:])
	off += 8
	p.PaginationCursor = binary.LittleEndian.Uint32(data[off:])
	off += 4
	p.DayCompleted = data[off] != 0
	off++
	p.TotalInvestors = binary.LittleEndian.Uint32(data[off:])
	return p, nil
}
