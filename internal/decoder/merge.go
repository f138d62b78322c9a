package decoder

import (
	"errors"

	"github.com/antoniostano/whisperpool/internal/model"
)

var errEmptySamples = errors.New("decoder: empty sample buffer")

// tokenMerger stitches acoustic tokens whose text splits a multi-byte UTF-8
// codepoint across token boundaries. Ported from missing_utf8_bytes() and
// getSegment() in original_source/src/whisper.cpp.
type tokenMerger struct {
	pending *model.Token
}

// push feeds one raw token through the merger. It returns zero tokens when
// the token is buffered awaiting continuation bytes, or one or more
// finalized tokens otherwise.
func (m *tokenMerger) push(tok model.Token) []model.Token {
	if tok.Special {
		var out []model.Token
		if m.pending != nil {
			out = append(out, *m.pending)
			m.pending = nil
		}
		out = append(out, tok)
		return out
	}

	if m.pending == nil {
		if missingUTF8Bytes(tok.Text) > 0 {
			t := tok
			t.SetMerged(1)
			m.pending = &t
			return nil
		}
		return []model.Token{tok}
	}

	merged := mergeTokens(*m.pending, tok)
	if missingUTF8Bytes(merged.Text) > 0 {
		m.pending = &merged
		return nil
	}
	m.pending = nil
	return []model.Token{merged}
}

// flush emits any buffered token that never reached zero missing bytes
// (end-of-segment flush). It uses the same token, already merged via push.
func (m *tokenMerger) flush() []model.Token {
	if m.pending == nil {
		return nil
	}
	t := *m.pending
	m.pending = nil
	return []model.Token{t}
}

// mergeTokens folds next into buf, averaging probabilities as
// field = (field*n + other.field) / (n+1), n = number of raw tokens
// already folded into buf. This single formula serves both mid-stream
// merges and the end-of-segment flush (spec §9 open question resolution).
func mergeTokens(buf, next model.Token) model.Token {
	n := float32(buf.Merged())
	buf.P = (buf.P*n + next.P) / (n + 1)
	buf.PLog = (buf.PLog*n + next.PLog) / (n + 1)
	buf.PT = (buf.PT*n + next.PT) / (n + 1)
	buf.PTSum = (buf.PTSum*n + next.PTSum) / (n + 1)
	buf.VLen += next.VLen
	buf.Text += next.Text
	buf.T1 = next.T1
	buf.TDTW = next.TDTW
	buf.SetMerged(buf.Merged() + 1)
	return buf
}

// missingUTF8Bytes scans text and returns the number of continuation bytes
// still expected after the last leading byte it saw. A leading byte with
// the high bits 110xxxxx/1110xxxx/11110xxx expects 1/2/3 continuations
// respectively; each continuation byte (10xxxxxx) decrements the count;
// an invalid sequence resets the count to 0.
func missingUTF8Bytes(text string) int {
	missing := 0
	for i := 0; i < len(text); i++ {
		b := text[i]
		switch {
		case b&0x80 == 0x00: // ASCII
			missing = 0
		case b&0xE0 == 0xC0: // 110xxxxx
			missing = 1
		case b&0xF0 == 0xE0: // 1110xxxx
			missing = 2
		case b&0xF8 == 0xF0: // 11110xxx
			missing = 3
		case b&0xC0 == 0x80: // 10xxxxxx continuation
			if missing > 0 {
				missing--
			} else {
				missing = 0
			}
		default:
			missing = 0
		}
	}
	return missing
}
