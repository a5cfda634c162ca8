package main

import (
	"sort"
)

// modelTally is the running accumulator for one model while scanning
// historical rankings.
type modelTally struct {
	totalPoints      int
	rankingsReceived int
	firstPlaces      int
	secondPlaces     int
	thirdPlaces      int
	positionHistory  []int
}

// ComputeModelScores recomputes the global leaderboard from all persisted,
// non-archived conversations. For every assistant message, the label-to-model
// mapping is rebuilt from that message's own stage1 order - never another
// message's - so scores stay correct as council membership changes over time.
// Each parsed ranking position awards points = numModels - position, where
// numModels is the number of models being ranked in that message: the winner
// of an N-model ranking earns N points, last place earns 1. Labels that
// don't resolve are kept under the raw label. The result is a pure function
// of the stored data.
func ComputeModelScores(store *Store) (*ScoreBoard, error) {
	conversations, err := store.AllConversations()
	if err != nil {
		return nil, err
	}

	tallies := make(map[string]*modelTally)
	totalConversations := 0
	totalRankings := 0

	for _, conv := range conversations {
		if conv.Archived {
			continue
		}

		scored := false
		for _, message := range conv.Messages {
			if message.Role != "assistant" || len(message.Stage2) == 0 || len(message.Stage1) == 0 {
				continue
			}

			scored = true

			labelToModel := assignLabels(message.Stage1)
			numModels := len(message.Stage1)

			for _, ranking := range message.Stage2 {
				if len(ranking.ParsedRanking) == 0 {
					continue
				}

				totalRankings++

				for position, label := range ranking.ParsedRanking {
					name, ok := labelToModel[label]
					if !ok {
						name = label
					}

					tally := tallies[name]
					if tally == nil {
						tally = &modelTally{}
						tallies[name] = tally
					}

					tally.totalPoints += numModels - position
					tally.rankingsReceived++
					tally.positionHistory = append(tally.positionHistory, position+1)

					switch position {
					case 0:
						tally.firstPlaces++
					case 1:
						tally.secondPlaces++
					case 2:
						tally.thirdPlaces++
					}
				}
			}
		}

		if scored {
			totalConversations++
		}
	}

	leaderboard := make([]ModelScore, 0, len(tallies))
	for model, tally := range tallies {
		if tally.rankingsReceived == 0 {
			continue
		}

		positionSum := 0
		for _, pos := range tally.positionHistory {
			positionSum += pos
		}

		leaderboard = append(leaderboard, ModelScore{
			Model:            model,
			TotalPoints:      tally.totalPoints,
			RankingsReceived: tally.rankingsReceived,
			FirstPlaces:      tally.firstPlaces,
			SecondPlaces:     tally.secondPlaces,
			ThirdPlaces:      tally.thirdPlaces,
			AveragePosition:  round2(float64(positionSum) / float64(len(tally.positionHistory))),
			AveragePoints:    round2(float64(tally.totalPoints) / float64(tally.rankingsReceived)),
		})
	}

	// Sort by total points descending, model name as tiebreaker so repeated
	// runs over the same data produce identical output.
	sort.Slice(leaderboard, func(i, j int) bool {
		if leaderboard[i].TotalPoints != leaderboard[j].TotalPoints {
			return leaderboard[i].TotalPoints > leaderboard[j].TotalPoints
		}
		return leaderboard[i].Model < leaderboard[j].Model
	})

	return &ScoreBoard{
		Leaderboard:                leaderboard,
		TotalConversationsAnalyzed: totalConversations,
		TotalRankingsProcessed:     totalRankings,
	}, nil
}
