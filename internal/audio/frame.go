package audio

// Frame is a single stereo sample: one value per channel.
type Frame struct {
	Left  float32
	Right float32
}

// Mono returns a frame with both channels set to the same value.
func Mono(v float32) Frame {
	return Frame{Left: v, Right: v}
}

// Add returns f + o channel-wise.
func (f Frame) Add(o Frame) Frame {
	return Frame{f.Left + o.Left, f.Right + o.Right}
}

// Sub returns f - o channel-wise.
func (f Frame) Sub(o Frame) Frame {
	return Frame{f.Left - o.Left, f.Right - o.Right}
}

// Scale returns f with both channels multiplied by v.
func (f Frame) Scale(v float32) Frame {
	return Frame{f.Left * v, f.Right * v}
}

// interpolateFrame is a 4-point, 3rd-order Hermite interpolator
// (p. 43: http://yehar.com/blog/wp-content/uploads/2009/08/deip.pdf).
// t is the fractional position between cur and next.
func interpolateFrame(prev, cur, next, next2 Frame, t float32) Frame {
	c0 := cur
	c1 := next.Sub(prev).Scale(0.5)
	c2 := prev.Sub(cur.Scale(2.5)).Add(next.Scale(2.0)).Sub(next2.Scale(0.5))
	c3 := next2.Sub(prev).Scale(0.5).Add(cur.Sub(next).Scale(1.5))
	return c3.Scale(t).Add(c2).Scale(t).Add(c1).Scale(t).Add(c0)
}
