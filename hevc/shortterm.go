package hevc

import "github.com/zsiec/hevcsplit/bitio"

// stRefPicSet is a parsed short_term_ref_pic_set(), ITU-T H.265 7.3.8.
// Only the derived negative/positive delta-POC lists and their
// used-by-curr-pic flags are kept: the slice header walker needs these to
// compute NumPicTotalCurr, not the POC values themselves.
type stRefPicSet struct {
	numNegative int
	numPositive int
	deltaPocS0  []int
	usedS0      []bool
	deltaPocS1  []int
	usedS1      []bool
}

func (s stRefPicSet) numDeltaPocs() int { return s.numNegative + s.numPositive }

// parseShortTermRefPicSet parses the stRpsIdx-th short_term_ref_pic_set().
// rpsList holds every previously parsed set (indices 0..stRpsIdx-1) for the
// inter-prediction derivation case. numShortTermRefPicSets is the SPS-level
// count; when parsing the extra set a slice header may carry directly,
// callers pass stRpsIdx == numShortTermRefPicSets per the standard's
// convention.
func parseShortTermRefPicSet(r *bitio.Reader, stRpsIdx, numShortTermRefPicSets int, rpsList []stRefPicSet) (stRefPicSet, error) {
	var out stRefPicSet

	interPred := false
	if stRpsIdx != 0 {
		f, err := r.ReadFlag()
		if err != nil {
			return out, err
		}
		interPred = f
	}

	if interPred {
		deltaIdxMinus1 := uint64(0)
		if stRpsIdx == numShortTermRefPicSets {
			v, err := r.ReadUE()
			if err != nil {
				return out, err
			}
			deltaIdxMinus1 = v
		}
		refRpsIdx := stRpsIdx - int(deltaIdxMinus1) - 1
		if refRpsIdx < 0 || refRpsIdx >= len(rpsList) {
			return out, ErrNonCompliantBitstream
		}
		deltaRpsSign, err := r.ReadFlag()
		if err != nil {
			return out, err
		}
		absMinus1, err := r.ReadUE()
		if err != nil {
			return out, err
		}
		deltaRps := int(absMinus1) + 1
		if deltaRpsSign {
			deltaRps = -deltaRps
		}

		ref := rpsList[refRpsIdx]
		numDeltaPocsRef := ref.numDeltaPocs()
		usedByCurr := make([]bool, numDeltaPocsRef+1)
		useDelta := make([]bool, numDeltaPocsRef+1)
		for j := 0; j <= numDeltaPocsRef; j++ {
			u, err := r.ReadFlag()
			if err != nil {
				return out, err
			}
			usedByCurr[j] = u
			if !u {
				ud, err := r.ReadFlag()
				if err != nil {
					return out, err
				}
				useDelta[j] = ud
			} else {
				useDelta[j] = true
			}
		}

		var negPoc []int
		var negUsed []bool
		for j := ref.numPositive - 1; j >= 0; j-- {
			dPoc := ref.deltaPocS1[j] + deltaRps
			idx := ref.numNegative + j
			if dPoc < 0 && useDelta[idx] {
				negPoc = append(negPoc, dPoc)
				negUsed = append(negUsed, usedByCurr[idx])
			}
		}
		if deltaRps < 0 && useDelta[numDeltaPocsRef] {
			negPoc = append(negPoc, deltaRps)
			negUsed = append(negUsed, usedByCurr[numDeltaPocsRef])
		}
		for j := 0; j < ref.numNegative; j++ {
			dPoc := ref.deltaPocS0[j] + deltaRps
			if dPoc < 0 && useDelta[j] {
				negPoc = append(negPoc, dPoc)
				negUsed = append(negUsed, usedByCurr[j])
			}
		}
		out.numNegative = len(negPoc)
		out.deltaPocS0 = negPoc
		out.usedS0 = negUsed

		var posPoc []int
		var posUsed []bool
		for j := ref.numNegative - 1; j >= 0; j-- {
			dPoc := ref.deltaPocS0[j] + deltaRps
			if dPoc > 0 && useDelta[j] {
				posPoc = append(posPoc, dPoc)
				posUsed = append(posUsed, usedByCurr[j])
			}
		}
		if deltaRps > 0 && useDelta[numDeltaPocsRef] {
			posPoc = append(posPoc, deltaRps)
			posUsed = append(posUsed, usedByCurr[numDeltaPocsRef])
		}
		for j := 0; j < ref.numPositive; j++ {
			idx := ref.numNegative + j
			dPoc := ref.deltaPocS1[j] + deltaRps
			if dPoc > 0 && useDelta[idx] {
				posPoc = append(posPoc, dPoc)
				posUsed = append(posUsed, usedByCurr[idx])
			}
		}
		out.numPositive = len(posPoc)
		out.deltaPocS1 = posPoc
		out.usedS1 = posUsed

		return out, nil
	}

	numNeg, err := r.ReadUE()
	if err != nil {
		return out, err
	}
	numPos, err := r.ReadUE()
	if err != nil {
		return out, err
	}
	out.numNegative = int(numNeg)
	out.numPositive = int(numPos)

	poc := 0
	for i := 0; i < int(numNeg); i++ {
		dMinus1, err := r.ReadUE()
		if err != nil {
			return out, err
		}
		poc -= int(dMinus1) + 1
		out.deltaPocS0 = append(out.deltaPocS0, poc)
		used, err := r.ReadFlag()
		if err != nil {
			return out, err
		}
		out.usedS0 = append(out.usedS0, used)
	}

	poc = 0
	for i := 0; i < int(numPos); i++ {
		dMinus1, err := r.ReadUE()
		if err != nil {
			return out, err
		}
		poc += int(dMinus1) + 1
		out.deltaPocS1 = append(out.deltaPocS1, poc)
		used, err := r.ReadFlag()
		if err != nil {
			return out, err
		}
		out.usedS1 = append(out.usedS1, used)
	}

	return out, nil
}

// numPicTotalCurr computes NumPicTotalCurr (7-57) for a short-term set
// combined with however many long-term pics the slice header selected.
func numPicTotalCurr(rps stRefPicSet, numLongTermUsed int) int {
	n := numLongTermUsed
	for _, u := range rps.usedS0 {
		if u {
			n++
		}
	}
	for _, u := range rps.usedS1 {
		if u {
			n++
		}
	}
	return n
}
