package protocol

import "sort"

// Baud rate identifiers understood by the companion processor.
const (
	Baud9600     byte = 0
	Baud19200    byte = 1
	Baud45450    byte = 2
	Baud93750    byte = 3
	Baud187500   byte = 4
	Baud500000   byte = 5
	Baud1500000  byte = 6
	Baud3000000  byte = 7
	Baud6000000  byte = 8
	Baud12000000 byte = 9
)

var baudToID = map[int]byte{
	9600:     Baud9600,
	19200:    Baud19200,
	45450:    Baud45450,
	93750:    Baud93750,
	187500:   Baud187500,
	500000:   Baud500000,
	1500000:  Baud1500000,
	3000000:  Baud3000000,
	6000000:  Baud6000000,
	12000000: Baud12000000,
}

var idToBaud = func() map[byte]int {
	m := make(map[byte]int, len(baudToID))
	for baud, id := range baudToID {
		m[id] = baud
	}
	return m
}()

// BaudRateID returns the identifier sent in a SET_CONFIG payload for the
// given Profibus baud rate in bit/s.
func BaudRateID(baud int) (byte, error) {
	id, ok := baudToID[baud]
	if !ok {
		return 0, &InvalidBaudRateError{BaudRate: baud}
	}
	return id, nil
}

// BaudRateFromID is the reverse of BaudRateID.
func BaudRateFromID(id byte) (int, bool) {
	baud, ok := idToBaud[id]
	return baud, ok
}

// SupportedBaudRates returns all supported baud rates in ascending order.
func SupportedBaudRates() []int {
	rates := make([]int, 0, len(baudToID))
	for baud := range baudToID {
		rates = append(rates, baud)
	}
	sort.Ints(rates)
	return rates
}

// ConfigPayload builds the SET_CONFIG payload for a baud rate.
func ConfigPayload(baud int) ([]byte, error) {
	id, err := BaudRateID(baud)
	if err != nil {
		return nil, err
	}
	return []byte{id}, nil
}
