package memworld

import (
	"sync"

	"github.com/aquilax/go-perlin"
)

// noiseSource - потокобезопасная обёртка над генератором шума Перлина
type noiseSource struct {
	mu     sync.Mutex
	perlin *perlin.Perlin
}

func newNoiseSource(seed int64) *noiseSource {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &noiseSource{perlin: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Noise2D возвращает значение шума для указанных координат (от 0 до 1)
func (ns *noiseSource) Noise2D(x, y float64) float64 {
	ns.mu.Lock()
	noise := ns.perlin.Noise2D(x, y)
	ns.mu.Unlock()

	// Преобразуем из [-1, 1] в [0, 1]
	return (noise + 1.0) / 2.0
}
