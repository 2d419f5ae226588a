package inputmap

import "sync/atomic"

// AddAdvocateContribution counts a validated hit supported by the
// advocate in the given file. unique means no other advocate supported
// the hit.
func (m *Map) AddAdvocateContribution(advocate AdvocateID, fileName string, unique bool) {
	m.contribution.getOrCreate(advocate, newCounters).getOrCreate(fileName, newCounter).Add(1)
	if unique {
		m.uniqueContribution.getOrCreate(advocate, newCounters).getOrCreate(fileName, newCounter).Add(1)
	}
}

// AddReferenceHit counts a validated hit of the combined hit set in the
// given file.
func (m *Map) AddReferenceHit(fileName string, unique bool) {
	m.referenceHits.getOrCreate(fileName, newCounter).Add(1)
	if unique {
		m.referenceUnique.getOrCreate(fileName, newCounter).Add(1)
	}
}

func count(c *lazyMap[string, *atomic.Int64], fileName string) int {
	if v, ok := c.get(fileName); ok {
		return int(v.Load())
	}
	return 0
}

func total(c *lazyMap[string, *atomic.Int64]) int {
	n := 0
	for _, v := range c.values() {
		n += int(v.Load())
	}
	return n
}

func perAdvocateCount(c *lazyMap[AdvocateID, counters], advocate AdvocateID, fileName string) int {
	files, ok := c.get(advocate)
	if !ok {
		return 0
	}
	return count(files, fileName)
}

func perAdvocateTotal(c *lazyMap[AdvocateID, counters], advocate AdvocateID) int {
	files, ok := c.get(advocate)
	if !ok {
		return 0
	}
	return total(files)
}

// AdvocateContribution returns the validated hits of the advocate in a file
func (m *Map) AdvocateContribution(advocate AdvocateID, fileName string) int {
	return perAdvocateCount(&m.contribution, advocate, fileName)
}

// AdvocateContributionTotal returns the validated hits of the advocate in
// the whole dataset
func (m *Map) AdvocateContributionTotal(advocate AdvocateID) int {
	return perAdvocateTotal(&m.contribution, advocate)
}

// AdvocateUniqueContribution returns the validated hits found only by the
// advocate in a file
func (m *Map) AdvocateUniqueContribution(advocate AdvocateID, fileName string) int {
	return perAdvocateCount(&m.uniqueContribution, advocate, fileName)
}

// AdvocateUniqueContributionTotal returns the validated hits found only by
// the advocate in the whole dataset
func (m *Map) AdvocateUniqueContributionTotal(advocate AdvocateID) int {
	return perAdvocateTotal(&m.uniqueContribution, advocate)
}

// ReferenceHits returns the validated hits of the combined set in a file
func (m *Map) ReferenceHits(fileName string) int {
	return count(&m.referenceHits, fileName)
}

// ReferenceHitsTotal returns the validated hits of the combined set
func (m *Map) ReferenceHitsTotal() int {
	return total(&m.referenceHits)
}

// ReferenceUniqueContribution returns the validated hits of the combined
// set in a file that only one advocate supported
func (m *Map) ReferenceUniqueContribution(fileName string) int {
	return count(&m.referenceUnique, fileName)
}

// ReferenceUniqueContributionTotal is ReferenceUniqueContribution summed
// over all files
func (m *Map) ReferenceUniqueContributionTotal() int {
	return total(&m.referenceUnique)
}

// HasAdvocateContribution tells whether any contribution was counted
func (m *Map) HasAdvocateContribution() bool {
	return m.contribution.len() > 0 || m.referenceHits.len() > 0
}

// ResetAdvocateContributions sets the advocate counters of one file back
// to zero. Reference hits are not touched.
func (m *Map) ResetAdvocateContributions(fileName string) {
	for _, c := range []*lazyMap[AdvocateID, counters]{&m.contribution, &m.uniqueContribution} {
		for _, files := range c.values() {
			if v, ok := files.get(fileName); ok {
				v.Store(0)
			}
		}
	}
}

// ResetContributions removes all counters
func (m *Map) ResetContributions() {
	m.contribution.clear()
	m.uniqueContribution.clear()
	m.referenceHits.clear()
	m.referenceUnique.clear()
}
