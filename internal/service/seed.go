package service

import "github.com/sakif/affirmations/internal/model"

// SeedCreatedBy labels rows inserted by SeedIfEmpty.
const SeedCreatedBy = "seed"

// SeedAffirmations returns the starter catalogue, one or more per area, in
// insertion order.
func SeedAffirmations() []model.Affirmation {
	seed := func(content string, c model.Category, tags ...string) model.Affirmation {
		return model.Affirmation{
			Content:   content,
			Category:  c,
			Tags:      tags,
			CreatedBy: SeedCreatedBy,
			IsActive:  true,
		}
	}
	return []model.Affirmation{
		seed("I am capable of achieving my goals through consistent action", model.CategorySuccess, "goals", "action", "capability"),
		seed("My body is strong and deserves care and respect", model.CategoryHealth, "body", "self-care", "strength"),
		seed("I choose love and compassion in my relationships", model.CategoryRelationships, "love", "compassion", "connection"),
		seed("I am worthy of success and abundance", model.CategoryConfidence, "self-worth", "success", "abundance"),
		seed("Each day I grow stronger and more resilient", model.CategoryPersonalGrowth, "growth", "resilience", "strength"),
		seed("I trust my intuition and make decisions with confidence", model.CategoryConfidence, "intuition", "decisions", "trust"),
		seed("I am grateful for the opportunities in my life", model.CategoryGratitude, "gratitude", "opportunities", "mindfulness"),
		seed("My potential is limitless and I embrace new challenges", model.CategoryPersonalGrowth, "potential", "challenges", "growth"),
		seed("I deserve happiness and I create it in my life", model.CategoryHappiness, "happiness", "self-worth", "creation"),
		seed("I am in control of my thoughts and choose positivity", model.CategoryMindset, "control", "thoughts", "positivity"),
	}
}
