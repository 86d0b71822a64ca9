package sensorscan

import "sync"

// Peripheral is an advertising device reported by a scan.
type Peripheral struct {
	ID   string
	Name string
	RSSI int
}

// DisplayName returns the advertised name, or a placeholder for devices that
// do not advertise one.
func (p *Peripheral) DisplayName() string {
	if p.Name == "" {
		return "Unnamed Device"
	}
	return p.Name
}

// PeripheralList holds discovered peripherals in first-seen order with no two
// entries sharing an ID.
type PeripheralList struct {
	lck   sync.RWMutex
	items []Peripheral
	index map[string]int
}

func NewPeripheralList() *PeripheralList {
	return &PeripheralList{
		index: make(map[string]int),
	}
}

// Add appends p unless a peripheral with the same ID is already present. It
// reports whether p was added.
func (l *PeripheralList) Add(p Peripheral) bool {
	l.lck.Lock()
	defer l.lck.Unlock()

	if _, ok := l.index[p.ID]; ok {
		return false
	}

	l.index[p.ID] = len(l.items)
	l.items = append(l.items, p)
	return true
}

func (l *PeripheralList) Contains(id string) bool {
	l.lck.RLock()
	defer l.lck.RUnlock()
	_, ok := l.index[id]
	return ok
}

func (l *PeripheralList) Get(id string) (Peripheral, bool) {
	l.lck.RLock()
	defer l.lck.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return Peripheral{}, false
	}
	return l.items[i], true
}

// All returns a copy of the list.
func (l *PeripheralList) All() []Peripheral {
	l.lck.RLock()
	defer l.lck.RUnlock()
	items := make([]Peripheral, len(l.items))
	copy(items, l.items)
	return items
}

func (l *PeripheralList) Len() int {
	l.lck.RLock()
	defer l.lck.RUnlock()
	return len(l.items)
}
