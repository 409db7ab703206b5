package solana

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildEscrowAccountV2(t *testing.T, mutate func([]byte)) []byte {
	t.Helper()
	data := make([]byte, escrowAccountLenV2)
	data[offV] = 2
	data[offStatus] = 1
	for i := 0; i < 32; i++ {
		data[offPaymentHash+i] = byte(i)
		data[offRecipient+i] = byte(i + 1)
		data[offRefund+i] = byte(i + 2)
		data[offMint+i] = byte(i + 3)
		data[offFeeCollector+i] = byte(i + 4)
		data[offVault+i] = byte(i + 5)
	}
	binary.LittleEndian.PutUint64(data[offRefundAfter:], 1700000000)
	binary.LittleEndian.PutUint64(data[offNetAmount:], 1_000_000)
	binary.LittleEndian.PutUint64(data[offFeeAmount:], 2_500)
	binary.LittleEndian.PutUint16(data[offFeeBps:], 25)
	data[offBump] = 7

	if mutate != nil {
		mutate(data)
	}
	return data
}

func TestDecodeEscrowAccountV2RoundTrip(t *testing.T) {
	data := buildEscrowAccountV2(t, nil)

	a, err := decodeEscrowAccountV2(data)
	require.NoError(t, err)
	require.Equal(t, uint8(2), a.Version)
	require.Equal(t, uint8(1), a.Status)
	require.Equal(t, byte(0), a.PaymentHash[0])
	require.Equal(t, byte(31), a.PaymentHash[31])
	require.Equal(t, int64(1700000000), a.RefundAfterUnix)
	require.Equal(t, uint64(1_000_000), a.NetAmount)
	require.Equal(t, uint64(2_500), a.FeeAmount)
	require.Equal(t, uint16(25), a.FeeBps)
	require.Equal(t, uint8(7), a.Bump)
}

func TestDecodeEscrowAccountV2RejectsWrongLength(t *testing.T) {
	data := buildEscrowAccountV2(t, nil)
	_, err := decodeEscrowAccountV2(data[:len(data)-1])
	require.Error(t, err)
}

func TestDecodeEscrowAccountV2RejectsWrongVersion(t *testing.T) {
	data := buildEscrowAccountV2(t, func(b []byte) { b[offV] = 1 })
	_, err := decodeEscrowAccountV2(data)
	require.Error(t, err)
}

func buildConfigAccountV1(t *testing.T, mutate func([]byte)) []byte {
	t.Helper()
	data := make([]byte, configAccountLenV1)
	data[0] = 1
	for i := 0; i < 32; i++ {
		data[1+i] = byte(i)
		data[33+i] = byte(i + 1)
	}
	binary.LittleEndian.PutUint16(data[65:], 50)
	data[67] = 3

	if mutate != nil {
		mutate(data)
	}
	return data
}

func TestDecodeConfigAccountV1RoundTrip(t *testing.T) {
	data := buildConfigAccountV1(t, nil)

	c, err := decodeConfigAccountV1(data)
	require.NoError(t, err)
	require.Equal(t, uint8(1), c.Version)
	require.Equal(t, byte(0), c.Authority[0])
	require.Equal(t, byte(1), c.FeeCollector[0])
	require.Equal(t, uint16(50), c.FeeBps)
	require.Equal(t, uint8(3), c.Bump)
}

func TestDecodeConfigAccountV1RejectsWrongLength(t *testing.T) {
	data := buildConfigAccountV1(t, nil)
	_, err := decodeConfigAccountV1(data[:len(data)-5])
	require.Error(t, err)
}

func TestDecodeConfigAccountV1RejectsWrongVersion(t *testing.T) {
	data := buildConfigAccountV1(t, func(b []byte) { b[0] = 2 })
	_, err := decodeConfigAccountV1(data)
	require.Error(t, err)
}
