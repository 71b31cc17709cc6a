package models

// SeqModulus — число значений seq и bdSeq: счётчики живут в диапазоне [0,255].
const SeqModulus = 256

// NextSeq возвращает следующее значение счётчика seq/bdSeq, после 255 идёт 0.
func NextSeq(v uint64) uint64 {
	return (v + 1) % SeqModulus
}
