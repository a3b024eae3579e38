package dashboard

import "github.com/brojonat/signwatch/service/transfer"

func rec(hash, value, decimals, ts string) transfer.Record {
	return transfer.Record{
		Hash:         hash,
		From:         "0xfrom" + hash,
		To:           "0xto" + hash,
		Value:        value,
		TokenDecimal: decimals,
		TokenSymbol:  "SIGN",
		TimeStamp:    ts,
	}
}

// scenarioRecords is the pair a (1 token at t=1000) and b (2 tokens at t=2000).
func scenarioRecords() []transfer.Record {
	return []transfer.Record{
		rec("a", "1000000000000000000", "18", "1000"),
		rec("b", "2000000000000000000", "18", "2000"),
	}
}

func hashes(records []transfer.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Hash
	}
	return out
}
