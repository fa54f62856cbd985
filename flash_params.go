package w25n

import "time"

type flashParams struct {
	name string

	tRD  time.Duration
	tPP  time.Duration
	tBE  time.Duration
	tRST time.Duration
}

var (
	flashIDWinbondW25N01GV = [3]byte{0xEF, 0xAA, 0x21}
	flashIDWinbondW25N02KV = [3]byte{0xEF, 0xAA, 0x22}
	flashIDWinbondW25N04KV = [3]byte{0xEF, 0xAA, 0x23}
)

var knownFlash = map[[3]byte]flashParams{
	flashIDWinbondW25N01GV: {
		name: "Winbond W25N01GV 1Gb",

		// [W25N01GV|9.7 AC Electrical Characteristics]
		// tRD: Read Page Data Time (ECC enabled)
		tRD: 60 * time.Microsecond,
		// tPP: Page Program Time
		tPP: 700 * time.Microsecond,
		// tBE: Block Erase Time
		tBE: 10 * time.Millisecond,
		// tRST: /CS High to next Instruction after Reset during erase
		tRST: 500 * time.Microsecond,
	},

	flashIDWinbondW25N02KV: {
		name: "Winbond W25N02KV 2Gb",

		// [W25N02KV|9.7 AC Electrical Characteristics]
		tRD:  60 * time.Microsecond,
		tPP:  700 * time.Microsecond,
		tBE:  10 * time.Millisecond,
		tRST: 500 * time.Microsecond,
	},

	flashIDWinbondW25N04KV: {
		name: "Winbond W25N04KV 4Gb",

		// [W25N04KV|9.7 AC Electrical Characteristics]
		// tRD2: Read Page Data Time (ECC enabled)
		tRD: 60 * time.Microsecond,
		// tPP: Page Program Time
		tPP: 700 * time.Microsecond,
		// tBE: Block Erase Time
		tBE: 10 * time.Millisecond,
		// tRST: /CS High to next Instruction after Reset during erase
		tRST: 500 * time.Microsecond,
	},
}

func (f *Flash) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if identified
	if f.pr != nil {
		return get(f.pr)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (f *Flash) tRD() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tRD })
}
func (f *Flash) tPP() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tPP })
}
func (f *Flash) tBE() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tBE })
}
func (f *Flash) tRST() time.Duration {
	return f.paramOrMax(func(p *flashParams) time.Duration { return p.tRST })
}
