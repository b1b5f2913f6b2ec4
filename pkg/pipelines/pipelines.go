// Package pipelines holds the example aggregations over the MOT testresults collection.
package pipelines

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/pkdone/mongo-uk-car-data/pkg/facet"
)

// Facet names used by CarsFacets.
const (
	CategorisedCarsByFuelTypeFacet              = "CategorisedCarsByFuelType"
	BucketedCarMakesByAmountOfUniqueModelsFacet = "BucketedCarMakesByAmountOfUniqueModels"
	TopCarsSummaryFacet                         = "TopCarsSummary"
)

// Names of the registered pipelines.
const (
	CarsFacetsName           = "cars-facets"
	TopCarsSummaryName       = "top-cars-summary"
	TopCarsWithTopModelsName = "top-cars-with-top-models"
)

var registry = map[string]func() mongo.Pipeline{
	CarsFacetsName:           CarsFacets,
	TopCarsSummaryName:       TopCarsSummary,
	TopCarsWithTopModelsName: TopCarsWithTopModels,
}

// Names returns the registered pipeline names in lexical order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns a fresh copy of the named pipeline.
func Lookup(name string) (mongo.Pipeline, bool) {
	build, ok := registry[name]
	if !ok {
		return nil, false
	}
	return build(), true
}

// CarsFacets summarises the data set along three dimensions in a single $facet stage.
func CarsFacets() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: facet.Marker, Value: bson.D{
			{Key: CategorisedCarsByFuelTypeFacet, Value: carsByFuelType()},
			{Key: BucketedCarMakesByAmountOfUniqueModelsFacet, Value: carMakesByAmountOfUniqueModels()},
			{Key: TopCarsSummaryFacet, Value: topCarsSummary()},
		}}},
	}
}

// TopCarsSummary lists the five most tested car makes with their most and least popular models.
func TopCarsSummary() mongo.Pipeline {
	return mongo.Pipeline(topCarsSummary())
}

// TopCarsWithTopModels lists the five most tested car makes, each with its top five models.
func TopCarsWithTopModels() mongo.Pipeline {
	return mongo.Pipeline{
		classifiedOnly(),
		groupByMakeAndModel(),
		{{Key: "$sort", Value: bson.D{{Key: "ModelTotal", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.Make"},
			{Key: "MakeTotal", Value: bson.D{{Key: "$sum", Value: "$ModelTotal"}}},
			{Key: "ModelTypes", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "Models", Value: bson.D{{Key: "$push", Value: bson.D{
				{Key: "Model", Value: "$_id.Model"},
				{Key: "Count", Value: "$ModelTotal"},
			}}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "MakeTotal", Value: -1}}}},
		{{Key: "$limit", Value: 5}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "Make", Value: "$_id"},
			{Key: "MakeTotal", Value: 1},
			{Key: "ModelTypes", Value: 1},
			{Key: "Top5Models", Value: bson.D{{Key: "$slice", Value: bson.A{"$Models", 5}}}},
		}}},
	}
}

func carsByFuelType() []bson.D {
	return []bson.D{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$FuelType"},
			{Key: "CarAmount", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "CarAmount", Value: -1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "FuelType", Value: "$_id"},
			{Key: "CarAmount", Value: 1},
		}}},
	}
}

func carMakesByAmountOfUniqueModels() []bson.D {
	return []bson.D{
		classifiedOnly(),
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "Make", Value: "$Make"}, {Key: "Model", Value: "$Model"}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.Make"},
			{Key: "ModelTypes", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$bucketAuto", Value: bson.D{
			{Key: "groupBy", Value: "$ModelTypes"},
			{Key: "buckets", Value: 20},
			{Key: "granularity", Value: "1-2-5"},
			{Key: "output", Value: bson.D{
				{Key: "CarMakesInBucket", Value: bson.D{{Key: "$sum", Value: 1}}},
			}},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "MinUniqueModels", Value: "$_id.min"},
			{Key: "MaxUniqueModels", Value: "$_id.max"},
			{Key: "CarMakesInBucket", Value: 1},
		}}},
	}
}

func topCarsSummary() []bson.D {
	return []bson.D{
		classifiedOnly(),
		groupByMakeAndModel(),
		{{Key: "$sort", Value: bson.D{{Key: "ModelTotal", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$_id.Make"},
			{Key: "MakeTotal", Value: bson.D{{Key: "$sum", Value: "$ModelTotal"}}},
			{Key: "ModelTypes", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "MostPopularModelName", Value: bson.D{{Key: "$first", Value: "$_id.Model"}}},
			{Key: "MostPopularModelQty", Value: bson.D{{Key: "$first", Value: "$ModelTotal"}}},
			{Key: "LeastPopularModelName", Value: bson.D{{Key: "$last", Value: "$_id.Model"}}},
			{Key: "LeastPopularModelQty", Value: bson.D{{Key: "$last", Value: "$ModelTotal"}}},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "MakeTotal", Value: -1}}}},
		{{Key: "$limit", Value: 5}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "Make", Value: "$_id"},
			{Key: "MakeTotal", Value: 1},
			{Key: "ModelTypes", Value: 1},
			{Key: "MostPopularModelName", Value: 1},
			{Key: "MostPopularModelQty", Value: 1},
			{Key: "LeastPopularModelName", Value: 1},
			{Key: "LeastPopularModelQty", Value: 1},
		}}},
	}
}

// classifiedOnly drops records whose make or model was not recorded.
func classifiedOnly() bson.D {
	return bson.D{{Key: "$match", Value: bson.D{
		{Key: "$and", Value: bson.A{
			bson.D{{Key: "Make", Value: bson.D{{Key: "$ne", Value: "UNCLASSIFIED"}}}},
			bson.D{{Key: "Model", Value: bson.D{{Key: "$ne", Value: "UNCLASSIFIED"}}}},
		}},
	}}}
}

func groupByMakeAndModel() bson.D {
	return bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: bson.D{{Key: "Make", Value: "$Make"}, {Key: "Model", Value: "$Model"}}},
		{Key: "ModelTotal", Value: bson.D{{Key: "$sum", Value: 1}}},
	}}}
}
