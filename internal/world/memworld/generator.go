package memworld

import (
	"github.com/annel0/portalnet/internal/vec"
	"github.com/annel0/portalnet/internal/world"
	"github.com/annel0/portalnet/internal/world/block"
)

// Generator возвращает исходный блок местности. Изменения поверх него хранит чанк.
type Generator interface {
	BlockAt(pos vec.Vec3) world.BlockState
}

// VoidGenerator - пустой мир
type VoidGenerator struct{}

// BlockAt всегда возвращает воздух
func (VoidGenerator) BlockAt(vec.Vec3) world.BlockState { return world.AirState }

// FlatGenerator - плоский мир: камень до Floor включительно, выше воздух
type FlatGenerator struct {
	Floor int
}

// BlockAt возвращает блок плоского мира
func (g FlatGenerator) BlockAt(pos vec.Vec3) world.BlockState {
	switch {
	case pos.Y < g.Floor:
		return world.StateOf(block.Stone)
	case pos.Y == g.Floor:
		return world.StateOf(block.Grass)
	default:
		return world.AirState
	}
}

// Константы высот для генерации
const (
	WaterLevel    = 0.30 // Ниже - вода
	MountainStart = 0.80 // Выше - голый камень
)

// TerrainGenerator генерирует холмистый ландшафт шумом Перлина
type TerrainGenerator struct {
	Seed       int64   // Сид для генерации шума
	NoiseScale float64 // Масштаб основного шума (высота)
	BaseHeight int     // Нижняя граница рельефа
	Amplitude  int     // Перепад высот
	noise      *noiseSource
}

// NewTerrainGenerator создаёт новый генератор местности
func NewTerrainGenerator(seed int64) *TerrainGenerator {
	return &TerrainGenerator{
		Seed:       seed,
		NoiseScale: 0.05, // Настройка сглаженности ландшафта
		BaseHeight: 48,
		Amplitude:  32,
		noise:      newNoiseSource(seed),
	}
}

// HeightAt возвращает высоту поверхности и нормализованное значение шума
func (g *TerrainGenerator) HeightAt(x, z int) (int, float64) {
	h := g.noise.Noise2D(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	return g.BaseHeight + int(h*float64(g.Amplitude)), h
}

// BlockAt возвращает блок местности
func (g *TerrainGenerator) BlockAt(pos vec.Vec3) world.BlockState {
	surface, h := g.HeightAt(pos.X, pos.Z)
	water := g.BaseHeight + int(WaterLevel*float64(g.Amplitude))

	switch {
	case pos.Y > surface:
		if h < WaterLevel && pos.Y <= water {
			return world.StateOf(block.Water)
		}
		return world.AirState
	case pos.Y == surface:
		switch {
		case h > MountainStart:
			return world.StateOf(block.Stone)
		case h < WaterLevel:
			return world.StateOf(block.Sand)
		default:
			return world.StateOf(block.Grass)
		}
	case pos.Y > surface-3:
		return world.StateOf(block.Dirt)
	default:
		return world.StateOf(block.Stone)
	}
}
