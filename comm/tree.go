package comm

// reduceSchedule is the binomial tree used to reduce onto rank 0: rank
// receives from each of recvFrom in order, adds, then sends to sendTo. Rank 0
// has sendTo == -1. No rank handles more than log2(size)+1 messages.
func reduceSchedule(rank, size int) (recvFrom []int, sendTo int) {
	sendTo = -1
	for mask := 1; mask < size; mask <<= 1 {
		if rank&mask != 0 {
			sendTo = rank &^ mask
			return
		}
		if peer := rank | mask; peer < size {
			recvFrom = append(recvFrom, peer)
		}
	}
	return
}
