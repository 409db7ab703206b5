package solana

import (
	"encoding/binary"
	"fmt"

	"github.com/satsbridge/swapd/internal/core/ports"
)

// Escrow account layout v2, 221 bytes, exactly as the program writes it:
//
//	v:u8=2, status:u8, payment_hash:[u8;32], recipient:[u8;32],
//	refund:[u8;32], refund_after:i64 LE, mint:[u8;32], net_amount:u64 LE,
//	fee_amount:u64 LE, fee_bps:u16 LE, fee_collector:[u8;32],
//	vault:[u8;32], bump:u8
const escrowAccountLenV2 = 221

const (
	offV              = 0
	offStatus         = 1
	offPaymentHash    = 2
	offRecipient      = offPaymentHash + 32
	offRefund         = offRecipient + 32
	offRefundAfter    = offRefund + 32
	offMint           = offRefundAfter + 8
	offNetAmount      = offMint + 32
	offFeeAmount      = offNetAmount + 8
	offFeeBps         = offFeeAmount + 8
	offFeeCollector   = offFeeBps + 2
	offVault          = offFeeCollector + 32
	offBump           = offVault + 32
)

func decodeEscrowAccountV2(data []byte) (*ports.EscrowAccount, error) {
	if len(data) != escrowAccountLenV2 {
		return nil, fmt.Errorf("solana: unexpected escrow account length %d, want %d", len(data), escrowAccountLenV2)
	}
	if data[offV] != 2 {
		return nil, fmt.Errorf("solana: unsupported escrow account version %d", data[offV])
	}

	a := &ports.EscrowAccount{
		Version: data[offV],
		Status:  data[offStatus],
	}
	copy(a.PaymentHash[:], data[offPaymentHash:offPaymentHash+32])
	copy(a.Recipient[:], data[offRecipient:offRecipient+32])
	copy(a.Refund[:], data[offRefund:offRefund+32])
	a.RefundAfterUnix = int64(binary.LittleEndian.Uint64(data[offRefundAfter : offRefundAfter+8]))
	copy(a.Mint[:], data[offMint:offMint+32])
	a.NetAmount = binary.LittleEndian.Uint64(data[offNetAmount : offNetAmount+8])
	a.FeeAmount = binary.LittleEndian.Uint64(data[offFeeAmount : offFeeAmount+8])
	a.FeeBps = binary.LittleEndian.Uint16(data[offFeeBps : offFeeBps+2])
	copy(a.FeeCollector[:], data[offFeeCollector:offFeeCollector+32])
	copy(a.Vault[:], data[offVault:offVault+32])
	a.Bump = data[offBump]

	return a, nil
}

// Config account layout v1, 68 bytes:
//
//	v:u8=1, authority:[u8;32], fee_collector:[u8;32], fee_bps:u16 LE, bump:u8
const configAccountLenV1 = 68

type configAccount struct {
	Version      uint8
	Authority    [32]byte
	FeeCollector [32]byte
	FeeBps       uint16
	Bump         uint8
}

func decodeConfigAccountV1(data []byte) (*configAccount, error) {
	if len(data) != configAccountLenV1 {
		return nil, fmt.Errorf("solana: unexpected config account length %d, want %d", len(data), configAccountLenV1)
	}
	if data[0] != 1 {
		return nil, fmt.Errorf("solana: unsupported config account version %d", data[0])
	}
	c := &configAccount{Version: data[0]}
	copy(c.Authority[:], data[1:33])
	copy(c.FeeCollector[:], data[33:65])
	c.FeeBps = binary.LittleEndian.Uint16(data[65:67])
	c.Bump = data[67]
	return c, nil
}

// Instruction tags, matching the program's externally visible ABI.
const (
	instrInit         byte = 0
	instrClaim        byte = 1
	instrRefund       byte = 2
	instrInitConfig   byte = 3
	instrSetConfig    byte = 4
	instrWithdrawFees byte = 5
)
