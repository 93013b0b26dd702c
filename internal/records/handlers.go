package records

import (
	"strconv"

	"backend-alluviamaps/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *DataService, authMiddleware fiber.Handler) {
	r.Get("/trails", func(c *fiber.Ctx) error {
		return c.JSON(svc.FetchTrails(c.Context(), useCache(c)))
	})

	r.Get("/sites", func(c *fiber.Ctx) error {
		return c.JSON(svc.FetchSites(c.Context(), useCache(c)))
	})

	r.Get("/bounds", func(c *fiber.Ctx) error {
		b, err := BoundsFromQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return c.JSON(svc.FetchInBounds(c.Context(), b))
	})

	r.Get("/search", func(c *fiber.Ctx) error {
		query := c.Query("q")
		if query == "" {
			return fiber.NewError(fiber.StatusBadRequest, "q required")
		}
		kind := Kind(c.Query("kind", string(KindTrails)))
		results, ok := svc.Search(c.Context(), query, kind)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "kind must be trails or sites")
		}
		return c.JSON(results)
	})

	r.Post("/cache/invalidate", authMiddleware, func(c *fiber.Ctx) error {
		svc.Invalidate()
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func useCache(c *fiber.Ctx) bool {
	return c.QueryBool("cache", true)
}

// BoundsFromQuery reads north/south/east/west query parameters. All four are required.
func BoundsFromQuery(c *fiber.Ctx) (geo.Bounds, error) {
	var vals [4]float64
	for i, key := range []string{"north", "south", "east", "west"} {
		v, err := strconv.ParseFloat(c.Query(key), 64)
		if err != nil {
			return geo.Bounds{}, fiber.NewError(fiber.StatusBadRequest, key+" must be a number")
		}
		vals[i] = v
	}
	b := geo.Bounds{North: vals[0], South: vals[1], East: vals[2], West: vals[3]}
	if b.South > b.North {
		return geo.Bounds{}, fiber.NewError(fiber.StatusBadRequest, "south must not exceed north")
	}
	return b, nil
}
