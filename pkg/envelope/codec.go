package envelope

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// bodyFields declares, per Kind, the fixed field order that participates in
// the canonical encoding. Any body field not listed here is carried in the
// envelope but never affects Hash — this is what lets unknown/forward-
// compatible body fields ride along without perturbing signatures.
var bodyFields = map[Kind][]string{
	KindRFQ: {
		"pair", "direction", "btc_sats", "usdt_amount", "usdt_decimals",
		"sol_recipient", "sol_mint", "app_hash",
		"max_platform_fee_bps", "max_trade_fee_bps", "max_total_fee_bps",
		"min_sol_refund_window_sec", "max_sol_refund_window_sec",
		"valid_until_unix",
	},
	KindQuote: {
		"rfq_id", "btc_sats", "usdt_amount", "usdt_decimals", "sol_mint",
		"platform_fee_bps", "platform_fee_collector",
		"trade_fee_bps", "trade_fee_collector",
		"app_hash", "valid_until_unix",
	},
	KindQuoteAccept: {
		"quote_id",
	},
	KindSwapInvite: {
		"swap_channel", "invite",
	},
	KindTerms: {
		"pair", "direction", "app_hash", "btc_sats",
		"usdt_amount", "usdt_decimals", "sol_mint",
		"sol_recipient", "sol_refund", "sol_refund_after_unix",
		"platform_fee_bps", "platform_fee_collector",
		"trade_fee_bps", "trade_fee_collector",
		"ln_receiver_peer", "ln_payer_peer", "terms_valid_until_unix",
	},
	KindAccept: {
		"terms_hash",
	},
	KindLnInvoice: {
		"bolt11", "payment_hash_hex", "amount_msat", "expires_at_unix",
	},
	KindSolEscrowCreated: {
		"program_id", "escrow_pda", "vault_ata", "mint", "payment_hash",
		"amount", "refund_after_unix", "recipient", "refund", "tx_sig",
	},
	KindStatus: {
		"ln_paid", "claimed", "refunded", "tx_sig",
	},
	KindCancel: {
		"reason",
	},
	KindSvcAnnounce: {
		"pair", "role", "fee_note",
	},
}

// nestedFields declares the fixed field order for known nested body objects
// (currently only the swap invite payload).
var nestedFields = map[string][]string{
	"invite": {"inviteePubKey", "inviterPubKey", "expiresAt"},
}

// canonicalBytes renders e's signable form: envelope header fields in a
// fixed order, followed by the body's declared fields in their fixed order.
// Body fields absent from the declared list are skipped entirely.
func canonicalBytes(e Envelope) ([]byte, error) {
	var sb strings.Builder

	sb.WriteString("v=")
	sb.WriteString(strconv.Itoa(e.V))
	sb.WriteString("|kind=")
	sb.WriteString(string(e.Kind))
	sb.WriteString("|trade_id=")
	sb.WriteString(canonicalString(e.TradeID))
	sb.WriteString("|ts=")
	sb.WriteString(strconv.FormatInt(e.TS, 10))
	sb.WriteString("|nonce=")
	sb.WriteString(canonicalString(e.Nonce))
	sb.WriteString("|body={")

	fields, ok := bodyFields[e.Kind]
	if !ok {
		return nil, fmt.Errorf("envelope: no declared body fields for kind %q", e.Kind)
	}

	first := true
	for _, name := range fields {
		v, present := e.Body[name]
		if !present || v == nil {
			continue
		}
		if !first {
			sb.WriteString(",")
		}
		first = false
		sb.WriteString(name)
		sb.WriteString(":")
		enc, err := canonicalValue(name, v)
		if err != nil {
			return nil, fmt.Errorf("envelope: field %q: %w", name, err)
		}
		sb.WriteString(enc)
	}
	sb.WriteString("}")

	return []byte(sb.String()), nil
}

func canonicalValue(field string, v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "null", nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case string:
		return canonicalString(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		// JSON-decoded numbers arrive as float64; the schema requires these
		// fields to be integral, so round-trip through an integer.
		if t != float64(int64(t)) {
			return "", fmt.Errorf("expected integer value, got %v", t)
		}
		return strconv.FormatInt(int64(t), 10), nil
	case map[string]any:
		order, ok := nestedFields[field]
		if !ok {
			return "", fmt.Errorf("no declared nested field order for %q", field)
		}
		var sb strings.Builder
		sb.WriteString("{")
		first := true
		for _, name := range order {
			nv, present := t[name]
			if !present || nv == nil {
				continue
			}
			if !first {
				sb.WriteString(",")
			}
			first = false
			sb.WriteString(name)
			sb.WriteString(":")
			enc, err := canonicalValue(name, nv)
			if err != nil {
				return "", err
			}
			sb.WriteString(enc)
		}
		sb.WriteString("}")
		return sb.String(), nil
	case []string:
		sorted := append([]string{}, t...)
		sort.Strings(sorted)
		var sb strings.Builder
		sb.WriteString("[")
		for i, s := range sorted {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString(canonicalString(s))
		}
		sb.WriteString("]")
		return sb.String(), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// canonicalString quotes and escapes a string the same way for every
// occurrence, so the same logical value always produces the same bytes.
func canonicalString(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			sb.WriteString(`\"`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// DeclaredBodyFields returns the fixed field order used for kind's body in
// the canonical encoding, for callers (e.g. the validator) that need to
// know which fields are hash-significant.
func DeclaredBodyFields(kind Kind) []string {
	fields := bodyFields[kind]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}
