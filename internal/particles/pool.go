package particles

import "image/color"

// Kind selects the per-particle physics and draw style.
type Kind int

const (
	Spark Kind = iota
	Glow
	Trail
	Explosion
	Ripple
)

var kindNames = map[Kind]string{
	Spark:     "spark",
	Glow:      "glow",
	Trail:     "trail",
	Explosion: "explosion",
	Ripple:    "ripple",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Particle is a single pooled particle. Pointers handed out by Acquire stay
// valid until the particle is released.
type Particle struct {
	X, Y   float64
	VX, VY float64
	Age    int
	MaxAge int
	Size   float64
	Alpha  float64
	Color  color.RGBA
	Kind   Kind
	Active bool
}

// SpawnParams configures an acquired particle. Zero fields take defaults.
type SpawnParams struct {
	X, Y   float64
	VX, VY float64
	MaxAge int
	Size   float64
	Alpha  float64
	Color  color.RGBA
	Kind   Kind
}

// Stats summarizes pool occupancy.
type Stats struct {
	Active int `json:"active"`
	Pooled int `json:"pooled"`
	Total  int `json:"total"`
}

const (
	DefaultInitial = 100
	DefaultMax     = 500
)

var white = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Pool recycles particles up to a fixed capacity. It is not safe for
// concurrent use; a single renderer owns it.
type Pool struct {
	free   []*Particle
	active []*Particle
	max    int
}

// NewPool preallocates initial particles and never holds more than max.
func NewPool(initial, max int) *Pool {
	if max <= 0 {
		max = DefaultMax
	}
	if initial < 0 {
		initial = 0
	}
	if initial > max {
		initial = max
	}
	p := &Pool{
		free:   make([]*Particle, 0, initial),
		active: make([]*Particle, 0, initial),
		max:    max,
	}
	for i := 0; i < initial; i++ {
		p.free = append(p.free, &Particle{MaxAge: 100, Size: 1, Alpha: 1, Color: white, Kind: Glow})
	}
	return p
}

// Acquire activates a particle, or reports false when the pool is full.
func (p *Pool) Acquire(sp SpawnParams) (*Particle, bool) {
	var pt *Particle
	switch {
	case len(p.free) > 0:
		pt = p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
	case len(p.active)+len(p.free) < p.max:
		pt = &Particle{}
	default:
		return nil, false
	}

	*pt = Particle{
		X:      sp.X,
		Y:      sp.Y,
		VX:     sp.VX,
		VY:     sp.VY,
		MaxAge: sp.MaxAge,
		Size:   sp.Size,
		Alpha:  sp.Alpha,
		Color:  sp.Color,
		Kind:   sp.Kind,
		Active: true,
	}
	if pt.MaxAge <= 0 {
		pt.MaxAge = 100
	}
	if pt.Size <= 0 {
		pt.Size = 1
	}
	if pt.Alpha <= 0 {
		pt.Alpha = 1
	}
	if pt.Color == (color.RGBA{}) {
		pt.Color = white
	}
	p.active = append(p.active, pt)
	return pt, true
}

// Release returns an active particle to the pool. Unknown particles are ignored.
func (p *Pool) Release(pt *Particle) {
	for i, a := range p.active {
		if a == pt {
			p.releaseAt(i)
			return
		}
	}
}

func (p *Pool) releaseAt(i int) {
	pt := p.active[i]
	pt.Active = false
	copy(p.active[i:], p.active[i+1:])
	p.active[len(p.active)-1] = nil
	p.active = p.active[:len(p.active)-1]
	if len(p.active)+len(p.free) < p.max {
		p.free = append(p.free, pt)
	}
}

// Update advances every active particle one step and releases dead ones.
func (p *Pool) Update() {
	for i := len(p.active) - 1; i >= 0; i-- {
		pt := p.active[i]
		pt.Age++
		pt.X += pt.VX
		pt.Y += pt.VY
		pt.Alpha = 1 - float64(pt.Age)/float64(pt.MaxAge)
		if pt.Alpha < 0 {
			pt.Alpha = 0
		}
		applyPhysics(pt)
		if pt.Age >= pt.MaxAge || pt.Alpha <= 0 {
			p.releaseAt(i)
		}
	}
}

func applyPhysics(pt *Particle) {
	switch pt.Kind {
	case Spark:
		pt.VY += 0.1
		pt.VX *= 0.99
		pt.VY *= 0.99
	case Glow:
		pt.VX *= 0.95
		pt.VY *= 0.95
	case Explosion:
		pt.VX *= 1.01
		pt.VY *= 1.01
	case Ripple:
		pt.VX = 0
		pt.VY = 0
	case Trail:
	}
}

// Active returns the live particles. The slice is only valid until the next
// pool mutation.
func (p *Pool) Active() []*Particle { return p.active }

// Stats reports current occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		Active: len(p.active),
		Pooled: len(p.free),
		Total:  len(p.active) + len(p.free),
	}
}

// Max returns the capacity.
func (p *Pool) Max() int { return p.max }

// Clear deactivates every particle and returns them to the pool.
func (p *Pool) Clear() {
	for i := len(p.active) - 1; i >= 0; i-- {
		pt := p.active[i]
		pt.Active = false
		p.active[i] = nil
		if len(p.free) < p.max {
			p.free = append(p.free, pt)
		}
	}
	p.active = p.active[:0]
}

// Resize changes the capacity, dropping pooled then active particles when shrinking.
func (p *Pool) Resize(max int) {
	if max < 0 {
		max = 0
	}
	p.max = max
	for len(p.free)+len(p.active) > max {
		if len(p.free) > 0 {
			p.free[len(p.free)-1] = nil
			p.free = p.free[:len(p.free)-1]
			continue
		}
		last := len(p.active) - 1
		pt := p.active[last]
		pt.Active = false
		p.active[last] = nil
		p.active = p.active[:last]
	}
}
