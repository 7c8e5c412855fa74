package highlight

import "github.com/chetanrakshe2510/karaoke-maker/pkg/types"

// Frame is the complete presentation state for one clock tick.
type Frame struct {
	Time      float64 `json:"time"`
	TimeLabel string  `json:"timeLabel"`
	Active    int     `json:"active"`
	From      int     `json:"from"`
	To        int     `json:"to"`
	Lines     []Line  `json:"lines"`
}

// Line is one visible lyric line.
type Line struct {
	Index        int    `json:"index"`
	Text         string `json:"text"`
	Active       bool   `json:"active"`
	Past         bool   `json:"past"`
	Instrumental bool   `json:"instrumental"`

	// Words carries per-word state when the line has word timing.
	Words []Word `json:"words,omitempty"`

	// Fill is the line-level sweep in percent, used when Words is empty.
	// For an active instrumental line it counts down from 100 to 0.
	Fill float64 `json:"fill"`
}

// Word is one word of a visible line.
type Word struct {
	Text  string    `json:"text"`
	State WordState `json:"state"`
}

// Resolve computes the frame for segs at time t.
func Resolve(segs []types.LyricSegment, t float64) Frame {
	f := Frame{Time: t, TimeLabel: FormatTime(t), Active: ActiveIndex(segs, t)}
	f.From, f.To = VisibleWindow(f.Active, len(segs))
	f.Lines = make([]Line, 0, f.To-f.From)
	for i := f.From; i < f.To; i++ {
		s := segs[i]
		ln := Line{
			Index:        i,
			Text:         s.Text,
			Active:       i == f.Active,
			Past:         i < f.Active,
			Instrumental: IsInstrumental(s.Text),
			Fill:         FillRatio(s.Start, s.End, t),
		}
		if ln.Instrumental && ln.Active {
			ln.Fill = 100 - ln.Fill
		} else if states := WordStates(s, t); states != nil {
			ln.Words = make([]Word, len(states))
			for k, st := range states {
				ln.Words[k] = Word{Text: s.Words[k].Word, State: st}
			}
		}
		f.Lines = append(f.Lines, ln)
	}
	return f
}
